package model

import "time"

// 角色枚举值。
const (
	RoleStudent = "student"
	RoleCoach   = "coach"
	RoleOwner   = "owner"
)

// User 表示系统用户。
type User struct {
	ID              uint   `gorm:"primaryKey" json:"id"`                                // 用户 ID
	Email           string `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"` // 邮箱（唯一，小写）
	Password        string `gorm:"not null" json:"-"`                                   // bcrypt 哈希
	FullName        string `gorm:"type:varchar(191)" json:"fullName"`                   // 姓名
	PhoneNumber     string `gorm:"type:varchar(32)" json:"phoneNumber"`                 // 电话
	Country         string `gorm:"type:varchar(64)" json:"country"`                     // 国家
	ProfilePhotoURL string `gorm:"type:varchar(512)" json:"profilePhotoUrl"`            // 头像 URL
	Role            string `gorm:"type:varchar(16);default:student" json:"role"`        // 角色: student / coach / owner
	AcceptedTerms   bool   `gorm:"not null" json:"acceptedTerms"`                       // 是否同意条款
	IsVerified      bool   `gorm:"default:false" json:"isVerified"`                     // 邮箱是否已验证

	VerifyCode          string     `gorm:"type:varchar(16)" json:"-"` // 邮箱验证码（验证成功后清空）
	VerifyCodeExpiresAt *time.Time `json:"-"`                         // 验证码过期时间
	VerifyCodeSentAt    *time.Time `json:"-"`                         // 验证码发送时间

	CreatedAt time.Time `json:"createdAt"` // 创建时间
	UpdatedAt time.Time `json:"updatedAt"` // 更新时间
}

// ValidRole 判断角色是否为合法枚举值。
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleCoach, RoleOwner:
		return true
	}
	return false
}
