package store

import (
	"context"
	"errors"
	"fmt"

	"skillcamp/internal/model"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 表示没有匹配的用户。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail 表示邮箱已被占用（唯一索引冲突）。
	ErrDuplicateEmail = errors.New("email already exists")
)

const mysqlDuplicateEntry = 1062

// Users 基于 GORM/MySQL 实现用户存储。
//
// 邮箱唯一性由数据库唯一索引保证：并发注册同一邮箱时，
// 只有一个 INSERT 成功，其余返回 ErrDuplicateEmail。
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// FindByEmail 按邮箱查找用户，未找到返回 ErrNotFound。
func (s *Users) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// Create 插入新用户，邮箱冲突返回 ErrDuplicateEmail。
func (s *Users) Create(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		var mysqlErr *mysqldrv.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Save 保存用户的全部字段。
func (s *Users) Save(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Activate 将未验证用户置为已验证并清除验证码，同时落库 user 上的
// 资料字段。条件更新保证激活至多发生一次：并发验证时只有一个
// 请求返回 true，其余观察到 false。
func (s *Users) Activate(ctx context.Context, user *model.User) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND is_verified = ?", user.ID, false).
		Updates(map[string]interface{}{
			"is_verified":            true,
			"verify_code":            "",
			"verify_code_expires_at": nil,
			"verify_code_sent_at":    nil,
			"full_name":              user.FullName,
			"role":                   user.Role,
			"phone_number":           user.PhoneNumber,
			"country":                user.Country,
		})
	if res.Error != nil {
		return false, fmt.Errorf("activate user: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListAll 返回所有用户，密码哈希与验证码字段不查询。
func (s *Users) ListAll(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.WithContext(ctx).
		Select("id, email, full_name, phone_number, country, profile_photo_url, role, accepted_terms, is_verified, created_at, updated_at").
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
