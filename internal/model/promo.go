package model

import (
	"time"
)

// 优惠码类型
const (
	PromoExtraPrompts = "extra_prompts"
	PromoProTime      = "pro_time"
	PromoProDiscount  = "pro_discount"
)

// PromoCode 优惠码
type PromoCode struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	Code           string     `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Type           string     `gorm:"size:20;not null" json:"type"`
	Value          int        `gorm:"not null" json:"value"` // 提示次数 / 天数 / 折扣百分比
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	ValidFrom      time.Time  `gorm:"not null" json:"valid_from"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	MaxUses        *int       `json:"max_uses,omitempty"`
	CurrentUses    int        `gorm:"not null;default:0" json:"current_uses"`
	GrantValidDays *int       `json:"grant_valid_days,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// PromoGrant 用户兑换优惠码后获得的权益
type PromoGrant struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	UserID      int64      `gorm:"not null;uniqueIndex:idx_grant_user_code" json:"user_id"`
	PromoCodeID int64      `gorm:"not null;uniqueIndex:idx_grant_user_code" json:"promo_code_id"`
	Type        string     `gorm:"size:20;not null" json:"type"`
	Value       int        `gorm:"not null" json:"value"`
	AppliedAt   time.Time  `gorm:"not null" json:"applied_at"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

func (PromoGrant) TableName() string {
	return "promo_grants"
}

// ActiveAt 判断权益在 t 时刻是否生效
func (g *PromoGrant) ActiveAt(t time.Time) bool {
	if t.Before(g.AppliedAt) {
		return false
	}
	return g.ExpiresAt == nil || t.Before(*g.ExpiresAt)
}
