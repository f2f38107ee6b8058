package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken 表示令牌无法解析或签名不合法。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired 表示令牌已过期。
	ErrExpired = errors.New("token expired")
)

// Principal 是从合法令牌中解出的身份。
type Principal struct {
	UserID uint
	Role   string
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Issuer 负责签发与校验 JWT。
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer 创建 Issuer。ttl 为令牌有效期（0 表示默认 7 天）。
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue 为指定用户签发携带角色信息的令牌。
func (i *Issuer) Issue(userID uint, role string) (string, error) {
	now := time.Now()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify 校验令牌并返回 Principal。
func (i *Issuer) Verify(tokenStr string) (Principal, error) {
	claims := &customClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpired
		}
		return Principal{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	return Principal{UserID: uint(uid), Role: claims.Role}, nil
}
