package dto

import "time"

// RedeemRequest 兑换优惠码请求
type RedeemRequest struct {
	Code string `json:"code" binding:"required,min=3,max=50"`
}

// GrantInfo 已兑换的权益
type GrantInfo struct {
	Code      string `json:"code,omitempty"`
	Type      string `json:"type"`
	Value     int    `json:"value"`
	AppliedAt string `json:"applied_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// CreatePromoCodeRequest 创建优惠码（管理端）
type CreatePromoCodeRequest struct {
	Code           string     `json:"code" binding:"required,min=3,max=50"`
	Type           string     `json:"type" binding:"required,oneof=extra_prompts pro_time pro_discount"`
	Value          int        `json:"value" binding:"required,min=1"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	MaxUses        *int       `json:"max_uses,omitempty" binding:"omitempty,min=1"`
	GrantValidDays *int       `json:"grant_valid_days,omitempty" binding:"omitempty,min=1"`
}
