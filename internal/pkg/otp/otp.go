package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeMin   = 100000
	codeRange = 900000
)

// Generate 生成 [100000, 999999] 范围内均匀分布的 6 位验证码。
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
