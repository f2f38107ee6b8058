package cooldown

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "skillcamp:resend:cooldown:"

// Gate 基于 Redis SetNX 实现验证码重发冷却。
type Gate struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGate(rdb *redis.Client, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Gate{
		rdb: rdb,
		ttl: ttl,
	}
}

// Allow 判断该邮箱当前是否允许重发。首次调用占用冷却窗口;
// 窗口内的后续调用返回 false 以及剩余等待时间。
func (g *Gate) Allow(ctx context.Context, email string) (bool, time.Duration, error) {
	if g == nil || g.rdb == nil || email == "" {
		return true, 0, nil
	}
	key := keyPrefix + hashEmail(email)
	ok, err := g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown setnx: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	remain, err := g.rdb.TTL(ctx, key).Result()
	if err != nil || remain < 0 {
		remain = g.ttl
	}
	return false, remain, nil
}

// Clear 清除冷却（验证成功后调用）。
func (g *Gate) Clear(ctx context.Context, email string) error {
	if g == nil || g.rdb == nil || email == "" {
		return nil
	}
	key := keyPrefix + hashEmail(email)
	if err := g.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cooldown del: %w", err)
	}
	return nil
}

func hashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
