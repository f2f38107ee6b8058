package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RegistrationsTotal 注册成功总数。
	RegistrationsTotal prometheus.Counter
	// VerificationsTotal 邮箱验证成功总数。
	VerificationsTotal prometheus.Counter
	// VerificationFailuresTotal 邮箱验证失败总数（错误码/过期）。
	VerificationFailuresTotal prometheus.Counter
	// LoginsTotal 登录成功总数。
	LoginsTotal prometheus.Counter
	// EmailSendFailuresTotal 验证邮件发送失败总数。
	EmailSendFailuresTotal prometheus.Counter

	initOnce sync.Once
)

// InitMetrics 注册 Prometheus 指标，重复调用安全。
func InitMetrics() {
	initOnce.Do(func() {
		RegistrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillcamp_registrations_total",
			Help: "Total number of successful registrations.",
		})
		VerificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillcamp_verifications_total",
			Help: "Total number of successful email verifications.",
		})
		VerificationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillcamp_verification_failures_total",
			Help: "Total number of rejected verification attempts.",
		})
		LoginsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillcamp_logins_total",
			Help: "Total number of successful logins.",
		})
		EmailSendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillcamp_email_send_failures_total",
			Help: "Total number of failed verification email sends.",
		})

		prometheus.MustRegister(
			RegistrationsTotal,
			VerificationsTotal,
			VerificationFailuresTotal,
			LoginsTotal,
			EmailSendFailuresTotal,
		)
	})
}
