package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"skillcamp/internal/api/auth"
	"skillcamp/internal/api/middleware"
	"skillcamp/internal/config"
	"skillcamp/internal/model"
	"skillcamp/internal/pkg/cooldown"
	"skillcamp/internal/pkg/metrics"
	"skillcamp/internal/pkg/notify"
	"skillcamp/internal/pkg/photostore"
	"skillcamp/internal/pkg/token"
	"skillcamp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	auth   *auth.Handler
	issuer *token.Issuer
	users  UserLister
}

// UserLister 定义用户列表查询能力（owner 专用接口）。
type UserLister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 构造邮件通知器、头像存储、令牌签发器等协作者
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	users := store.NewUsers(db)
	emailNotifier := notify.NewEmailNotifier(&cfg.Email, logger)
	issuer := token.NewIssuer(cfg.Security.JWTSecret, cfg.App.TokenTTL)
	resendGate := cooldown.NewGate(rdb, cfg.App.ResendCooldown)

	// 对象存储未配置时头像上传不可用，带头像的注册会收到 502
	var photos photostore.Store
	if cfg.Photo.AccessKey != "" && cfg.Photo.Bucket != "" {
		s3Store, err := photostore.NewS3Store(ctx, &cfg.Photo)
		if err != nil {
			return nil, err
		}
		photos = s3Store
	} else {
		logger.Warn("photo storage not configured, uploads disabled")
	}

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		issuer: issuer,
		auth: auth.NewHandler(
			users,
			emailNotifier,
			photos,
			issuer,
			resendGate,
			cfg.App.CodeTTL,
			cfg.App.MaxPhotoBytes,
			logger,
		),
		users: users,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	users := s.router.Group("/users")
	users.POST("/register", s.auth.Register)
	users.POST("/verify-email", s.auth.VerifyEmail)
	users.POST("/login", s.auth.Login)
	users.POST("/resend-code", s.auth.ResendCode)

	authed := users.Group("/")
	authed.Use(middleware.Auth(s.issuer))
	authed.GET("/all", middleware.RequireRoles(model.RoleOwner), s.handleListUsers)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleListUsers 返回所有用户信息（密码哈希与验证码不返回）。
//
// GET /users/all，仅 owner 角色可访问。
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.users.ListAll(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	c.JSON(http.StatusOK, users)
}
