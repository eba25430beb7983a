package model

import (
	"time"
)

// 订阅等级（由计费系统写入）
const (
	TierFree  = "free"
	TierPro   = "pro"
	TierPower = "power"
)

// User 用户账户：额度账本 + 经验值，version 用于乐观锁
type User struct {
	ID                   int64     `gorm:"primaryKey" json:"id"`
	Username             string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email                *string   `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	Timezone             string    `gorm:"size:64;default:UTC" json:"timezone"`
	Tier                 string    `gorm:"size:20;default:free;not null" json:"tier"`
	PromptsRemaining     int       `gorm:"not null;default:0" json:"prompts_remaining"`
	PromptsUsedThisMonth int       `gorm:"not null;default:0" json:"prompts_used_this_month"`
	StorageUsedMB        int       `gorm:"column:storage_used_mb;not null;default:0" json:"storage_used_mb"`
	StorageLimitMB       int       `gorm:"column:storage_limit_mb;not null" json:"storage_limit_mb"`
	BillingCycleAnchor   time.Time `gorm:"not null" json:"billing_cycle_anchor"`
	BillingCycleDay      int       `gorm:"not null;default:1" json:"-"`
	XP                   int64     `gorm:"column:xp;not null;default:0" json:"xp"`
	ProgressionLocked    bool      `gorm:"not null;default:false" json:"progression_locked"`
	LockReason           string    `gorm:"size:255" json:"-"`
	Version              int64     `gorm:"not null;default:1" json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Location 用户本地时区，无效时回退到 fallback
func (u *User) Location(fallback *time.Location) *time.Location {
	if u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
