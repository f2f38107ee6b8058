package notify

// Notifier 定义验证码通知接口。
type Notifier interface {
	// SendVerificationCode 将验证码发送到指定邮箱。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   fullName: 收件人姓名（用于称呼）
	//   code: 6 位验证码
	SendVerificationCode(toEmail string, fullName string, code string) error
}
