package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"skillcamp/internal/model"
	"skillcamp/internal/pkg/cooldown"
	"skillcamp/internal/pkg/metrics"
	"skillcamp/internal/pkg/notify"
	"skillcamp/internal/pkg/otp"
	"skillcamp/internal/pkg/photostore"
	"skillcamp/internal/pkg/token"
	"skillcamp/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// emailPattern 邮箱格式校验。
var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

const minPasswordLen = 5

// UserStore 定义注册/验证/登录所需的用户存储能力。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Save(ctx context.Context, user *model.User) error
	Activate(ctx context.Context, user *model.User) (bool, error)
}

// Handler 提供注册、邮箱验证与登录接口。
type Handler struct {
	store         UserStore
	notifier      notify.Notifier
	photos        photostore.Store
	issuer        *token.Issuer
	resendGate    *cooldown.Gate
	codeTTL       time.Duration
	maxPhotoBytes int64
	logger        *slog.Logger
}

// NewHandler 创建 Auth Handler。photos 可以为 nil（未配置对象存储时，
// 带头像的注册会被拒绝）。
func NewHandler(
	store UserStore,
	notifier notify.Notifier,
	photos photostore.Store,
	issuer *token.Issuer,
	resendGate *cooldown.Gate,
	codeTTL time.Duration,
	maxPhotoBytes int64,
	logger *slog.Logger,
) *Handler {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = 5 << 20
	}
	return &Handler{
		store:         store,
		notifier:      notifier,
		photos:        photos,
		issuer:        issuer,
		resendGate:    resendGate,
		codeTTL:       codeTTL,
		maxPhotoBytes: maxPhotoBytes,
		logger:        logger,
	}
}

// looseBool 同时接受 JSON 布尔值与字符串形式（"true"/"false"）。
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseBool(strings.Trim(string(data), `"`))
	if err != nil {
		return fmt.Errorf("invalid boolean value")
	}
	*b = looseBool(v)
	return nil
}

// UnmarshalParam 支持 multipart/form 绑定。
func (b *looseBool) UnmarshalParam(param string) error {
	v, err := strconv.ParseBool(param)
	if err != nil {
		return fmt.Errorf("invalid boolean value")
	}
	*b = looseBool(v)
	return nil
}

type registerRequest struct {
	FullName      string    `json:"fullName" form:"fullName"`
	Email         string    `json:"email" form:"email"`
	Password      string    `json:"password" form:"password"`
	Role          string    `json:"role" form:"role"`
	PhoneNumber   string    `json:"phoneNumber" form:"phoneNumber"`
	Country       string    `json:"country" form:"country"`
	AcceptedTerms looseBool `json:"acceptedTerms" form:"acceptedTerms"`
}

type verifyRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	FullName    string `json:"fullName"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phoneNumber"`
	Country     string `json:"country"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Register 注册新用户并发送邮箱验证码。
//
// 接受 JSON 或 multipart/form-data（可携带 profilePhoto 文件）。
// 用户以未验证状态落库，验证码随记录保存。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	email := normalizeEmail(req.Email)

	if req.FullName == "" || email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fullName, email and password are required"})
		return
	}
	if len(req.Password) < minPasswordLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", minPasswordLen)})
		return
	}
	if !emailPattern.MatchString(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address"})
		return
	}
	if !bool(req.AcceptedTerms) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you must accept the terms and conditions"})
		return
	}
	role, ok := normalizeRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	ctx := c.Request.Context()

	// 预检查只是为了友好报错，唯一性最终由存储层唯一索引保证
	if _, err := h.store.FindByEmail(ctx, email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.logError("query user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	code, err := otp.Generate()
	if err != nil {
		h.logError("generate verification code failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate code failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	photoURL, status, msg := h.uploadPhotoIfPresent(c)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	now := time.Now()
	exp := now.Add(h.codeTTL)
	user := &model.User{
		Email:               email,
		Password:            string(hash),
		FullName:            req.FullName,
		PhoneNumber:         strings.TrimSpace(req.PhoneNumber),
		Country:             strings.TrimSpace(req.Country),
		ProfilePhotoURL:     photoURL,
		Role:                role,
		AcceptedTerms:       true,
		IsVerified:          false,
		VerifyCode:          code,
		VerifyCodeExpiresAt: &exp,
		VerifyCodeSentAt:    &now,
	}

	if err := h.store.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
			return
		}
		h.logError("create user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	// 注册本身占用一次重发冷却窗口
	if h.resendGate != nil {
		_, _, _ = h.resendGate.Allow(ctx, email)
	}

	if err := h.notifier.SendVerificationCode(user.Email, user.FullName, code); err != nil {
		// 用户保持未验证状态，可通过 resend-code 重试
		metrics.EmailSendFailuresTotal.Inc()
		h.logError("send verification email failed", email, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "send verification email failed"})
		return
	}

	metrics.RegistrationsTotal.Inc()
	if h.logger != nil {
		h.logger.Info("user registered", slog.String("email", email), slog.String("role", role))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered, verification email sent",
		"email":   user.Email,
	})
}

// VerifyEmail 校验验证码并激活用户。激活至多发生一次。
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and code are required"})
		return
	}

	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()

	user, err := h.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found, please register first"})
			return
		}
		h.logError("query user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already verified"})
		return
	}
	// 验证码按字符串比较，避免前导零丢失
	if user.VerifyCode == "" || user.VerifyCode != strings.TrimSpace(req.Code) {
		metrics.VerificationFailuresTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification code"})
		return
	}
	if user.VerifyCodeExpiresAt == nil || time.Now().After(*user.VerifyCodeExpiresAt) {
		metrics.VerificationFailuresTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification code expired"})
		return
	}

	// 验证时可以补充或覆盖资料字段
	if v := strings.TrimSpace(req.FullName); v != "" {
		user.FullName = v
	}
	if req.Role != "" {
		role, ok := normalizeRole(req.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		user.Role = role
	}
	if v := strings.TrimSpace(req.PhoneNumber); v != "" {
		user.PhoneNumber = v
	}
	if v := strings.TrimSpace(req.Country); v != "" {
		user.Country = v
	}

	activated, err := h.store.Activate(ctx, user)
	if err != nil {
		h.logError("activate user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
		return
	}
	if !activated {
		// 并发验证竞争失败，另一请求已完成激活
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already verified"})
		return
	}

	if h.resendGate != nil {
		_ = h.resendGate.Clear(ctx, email)
	}

	metrics.VerificationsTotal.Inc()
	if h.logger != nil {
		h.logger.Info("email verified", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "email verified successfully, you can now log in",
		"user": userResponse{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     user.Role,
		},
	})
}

// Login 校验凭据并签发 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()

	user, err := h.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logError("query user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "please verify your email first"})
		return
	}

	tok, err := h.issuer.Issue(user.ID, user.Role)
	if err != nil {
		h.logError("sign token failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	metrics.LoginsTotal.Inc()
	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("email", email), slog.String("role", user.Role))
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"token":   tok,
		"user": userResponse{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     user.Role,
		},
	})
}

// ResendCode 为未验证用户重新发送验证码（Redis 冷却限频）。
func (h *Handler) ResendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()

	user, err := h.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logError("query user failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already verified"})
		return
	}

	if h.resendGate != nil {
		allowed, remain, err := h.resendGate.Allow(ctx, email)
		if err != nil {
			h.logError("resend cooldown check failed", email, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "resend failed"})
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": int(remain.Seconds()),
			})
			return
		}
	}

	code, err := otp.Generate()
	if err != nil {
		h.logError("generate verification code failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate code failed"})
		return
	}

	now := time.Now()
	exp := now.Add(h.codeTTL)
	user.VerifyCode = code
	user.VerifyCodeExpiresAt = &exp
	user.VerifyCodeSentAt = &now

	if err := h.store.Save(ctx, user); err != nil {
		h.logError("save verification code failed", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save code failed"})
		return
	}

	if err := h.notifier.SendVerificationCode(user.Email, user.FullName, code); err != nil {
		metrics.EmailSendFailuresTotal.Inc()
		h.logError("send verification email failed", email, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "send verification email failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("verification code resent", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// uploadPhotoIfPresent 上传 multipart 请求中的头像（若存在）。
// 返回头像 URL；status 非 0 表示应中止并按该状态响应。
func (h *Handler) uploadPhotoIfPresent(c *gin.Context) (string, int, string) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return "", 0, ""
	}
	file, err := c.FormFile("profilePhoto")
	if err != nil {
		// 没有携带头像
		return "", 0, ""
	}
	if file.Size > h.maxPhotoBytes {
		return "", http.StatusBadRequest, "profile photo too large"
	}
	if h.photos == nil {
		return "", http.StatusBadGateway, "photo storage not configured"
	}

	src, err := file.Open()
	if err != nil {
		return "", http.StatusBadRequest, "invalid profile photo"
	}
	defer src.Close()

	url, err := h.photos.Upload(c.Request.Context(), file.Filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		h.logError("photo upload failed", "", err)
		return "", http.StatusBadGateway, "photo upload failed"
	}
	return url, 0, ""
}

// normalizeRole 统一角色归一化：大小写折叠，空值回退 student。
func normalizeRole(role string) (string, bool) {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return model.RoleStudent, true
	}
	if !model.ValidRole(role) {
		return "", false
	}
	return role, true
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (h *Handler) logError(msg, email string, err error) {
	if h.logger == nil {
		return
	}
	attrs := []any{slog.String("error", err.Error())}
	if email != "" {
		attrs = append(attrs, slog.String("email", email))
	}
	h.logger.Error(msg, attrs...)
}
