package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Photo    PhotoConfig    `json:"photo"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string        `json:"env"`              // 运行环境: local / prod
	LogLevel       string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string        `json:"http_addr"`        // API 服务监听地址
	AllowedOrigins []string      `json:"allowed_origins"`  // 允许跨域的前端地址
	CodeTTL        time.Duration `json:"code_ttl"`         // 验证码有效期（如 "10m"）
	ResendCooldown time.Duration `json:"resend_cooldown"`  // 验证码重发冷却（如 "60s"）
	TokenTTL       time.Duration `json:"token_ttl"`        // JWT 有效期（如 "168h"）
	MaxPhotoBytes  int64         `json:"max_photo_bytes"`  // 头像上传大小上限（字节）
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件发送配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// PhotoConfig 头像对象存储配置（S3 兼容）。
type PhotoConfig struct {
	Endpoint      string `json:"endpoint"`        // S3 端点（MinIO 等兼容服务）
	Region        string `json:"region"`          // 区域
	Bucket        string `json:"bucket"`          // 桶名
	AccessKey     string `json:"access_key"`      // Access Key
	SecretKey     string `json:"secret_key"`      // Secret Key
	PublicBaseURL string `json:"public_base_url"` // 对外访问的基础 URL
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8080",
			AllowedOrigins: []string{"http://localhost:5173"},
			CodeTTL:        10 * time.Minute,
			ResendCooldown: 60 * time.Second,
			TokenTTL:       7 * 24 * time.Hour,
			MaxPhotoBytes:  5 << 20,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/skillcamp?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Photo: PhotoConfig{
			Endpoint:      "",
			Region:        "us-east-1",
			Bucket:        "skillcamp-photos",
			AccessKey:     "",
			SecretKey:     "",
			PublicBaseURL: "",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if len(cfg.App.AllowedOrigins) == 0 {
		cfg.App.AllowedOrigins = defaults.App.AllowedOrigins
	}
	if cfg.App.CodeTTL == 0 {
		cfg.App.CodeTTL = defaults.App.CodeTTL
	}
	if cfg.App.ResendCooldown == 0 {
		cfg.App.ResendCooldown = defaults.App.ResendCooldown
	}
	if cfg.App.TokenTTL == 0 {
		cfg.App.TokenTTL = defaults.App.TokenTTL
	}
	if cfg.App.MaxPhotoBytes == 0 {
		cfg.App.MaxPhotoBytes = defaults.App.MaxPhotoBytes
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Photo.Region == "" {
		cfg.Photo.Region = defaults.Photo.Region
	}
	if cfg.Photo.Bucket == "" {
		cfg.Photo.Bucket = defaults.Photo.Bucket
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("s3_access_key", "S3_ACCESS_KEY")
	_ = viper.BindEnv("s3_secret_key", "S3_SECRET_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		if len(origins) > 0 {
			cfg.App.AllowedOrigins = origins
		}
	}
	if v := os.Getenv("APP_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.CodeTTL = d
		}
	}
	if v := os.Getenv("APP_RESEND_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ResendCooldown = d
		}
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.TokenTTL = d
		}
	}
	if v := os.Getenv("APP_MAX_PHOTO_BYTES"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.App.MaxPhotoBytes = i
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Photo.Endpoint = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Photo.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Photo.Bucket = v
	}
	if v := viper.GetString("s3_access_key"); v != "" {
		cfg.Photo.AccessKey = v
	}
	if v := viper.GetString("s3_secret_key"); v != "" {
		cfg.Photo.SecretKey = v
	}
	if v := os.Getenv("S3_PUBLIC_BASE_URL"); v != "" {
		cfg.Photo.PublicBaseURL = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "skillcamp",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		CodeTTL        string `json:"code_ttl"`
		ResendCooldown string `json:"resend_cooldown"`
		TokenTTL       string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CodeTTL != "" {
		duration, err := time.ParseDuration(aux.CodeTTL)
		if err != nil {
			return fmt.Errorf("invalid code_ttl format: %w", err)
		}
		a.CodeTTL = duration
	}
	if aux.ResendCooldown != "" {
		duration, err := time.ParseDuration(aux.ResendCooldown)
		if err != nil {
			return fmt.Errorf("invalid resend_cooldown format: %w", err)
		}
		a.ResendCooldown = duration
	}
	if aux.TokenTTL != "" {
		duration, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		a.TokenTTL = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		CodeTTL        string `json:"code_ttl"`
		ResendCooldown string `json:"resend_cooldown"`
		TokenTTL       string `json:"token_ttl"`
		*Alias
	}{
		CodeTTL:        a.CodeTTL.String(),
		ResendCooldown: a.ResendCooldown.String(),
		TokenTTL:       a.TokenTTL.String(),
		Alias:          (*Alias)(&a),
	})
}
