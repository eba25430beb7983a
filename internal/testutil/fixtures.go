package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
)

var seq int64

// TestUser 创建测试用户（free 套餐基线额度）
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := atomic.AddInt64(&seq, 1)
	email := fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), n)
	anchor := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	user := &model.User{
		Username:           fmt.Sprintf("testuser_%d", n),
		Email:              &email,
		Timezone:           "UTC",
		Tier:               model.TierFree,
		PromptsRemaining:   100,
		StorageLimitMB:     100,
		BillingCycleAnchor: anchor,
		BillingCycleDay:    anchor.Day(),
		Version:            1,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	if err := db.Create(&model.UserStats{UserID: user.ID}).Error; err != nil {
		t.Fatalf("Failed to create test user stats: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithTier 设置套餐
func WithTier(tier string) func(*model.User) {
	return func(u *model.User) {
		u.Tier = tier
	}
}

// WithPrompts 设置剩余与本月已用提示次数
func WithPrompts(remaining, used int) func(*model.User) {
	return func(u *model.User) {
		u.PromptsRemaining = remaining
		u.PromptsUsedThisMonth = used
	}
}

// WithStorage 设置存储用量与上限
func WithStorage(usedMB, limitMB int) func(*model.User) {
	return func(u *model.User) {
		u.StorageUsedMB = usedMB
		u.StorageLimitMB = limitMB
	}
}

// WithAnchor 设置账单周期锚点
func WithAnchor(anchor time.Time) func(*model.User) {
	return func(u *model.User) {
		u.BillingCycleAnchor = anchor
		u.BillingCycleDay = anchor.Day()
	}
}

// WithCurrentCycle 账单锚点设为昨天，真实时钟下不会触发月度重置
func WithCurrentCycle() func(*model.User) {
	return WithAnchor(time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -1))
}

// WithTimezone 设置用户时区
func WithTimezone(tz string) func(*model.User) {
	return func(u *model.User) {
		u.Timezone = tz
	}
}

// WithXP 设置经验值
func WithXP(xp int64) func(*model.User) {
	return func(u *model.User) {
		u.XP = xp
	}
}

// TestPromoCode 创建测试优惠码
func TestPromoCode(t *testing.T, db *gorm.DB, code, promoType string, value int, opts ...func(*model.PromoCode)) *model.PromoCode {
	t.Helper()

	pc := &model.PromoCode{
		Code:      strings.ToUpper(code),
		Type:      promoType,
		Value:     value,
		IsActive:  true,
		ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, opt := range opts {
		opt(pc)
	}

	if err := db.Create(pc).Error; err != nil {
		t.Fatalf("Failed to create test promo code: %v", err)
	}
	// gorm 会忽略 bool 零值，用显式更新保证 is_active=false 生效
	if !pc.IsActive {
		db.Model(pc).Update("is_active", false)
	}

	return pc
}

// WithMaxUses 设置最大使用次数
func WithMaxUses(n int) func(*model.PromoCode) {
	return func(pc *model.PromoCode) {
		pc.MaxUses = &n
	}
}

// WithCurrentUses 设置已使用次数
func WithCurrentUses(n int) func(*model.PromoCode) {
	return func(pc *model.PromoCode) {
		pc.CurrentUses = n
	}
}

// WithWindow 设置有效期
func WithWindow(from time.Time, until *time.Time) func(*model.PromoCode) {
	return func(pc *model.PromoCode) {
		pc.ValidFrom = from
		pc.ValidUntil = until
	}
}

// WithInactive 设置为停用
func WithInactive() func(*model.PromoCode) {
	return func(pc *model.PromoCode) {
		pc.IsActive = false
	}
}

// WithGrantValidDays 设置权益有效天数
func WithGrantValidDays(days int) func(*model.PromoCode) {
	return func(pc *model.PromoCode) {
		pc.GrantValidDays = &days
	}
}

// TestGrant 直接写入一条权益
func TestGrant(t *testing.T, db *gorm.DB, userID, codeID int64, promoType string, value int, appliedAt time.Time, expiresAt *time.Time) *model.PromoGrant {
	t.Helper()

	g := &model.PromoGrant{
		UserID:      userID,
		PromoCodeID: codeID,
		Type:        promoType,
		Value:       value,
		AppliedAt:   appliedAt,
		ExpiresAt:   expiresAt,
	}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("Failed to create test grant: %v", err)
	}
	return g
}

// Ptr 取地址辅助
func Ptr[T any](v T) *T {
	return &v
}
