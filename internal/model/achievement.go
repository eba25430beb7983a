package model

import (
	"time"
)

// Achievement 成就进度，unlocked_at 一旦写入不再改变
type Achievement struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	UserID        int64      `gorm:"not null;uniqueIndex:idx_achievement_user_def" json:"user_id"`
	AchievementID string     `gorm:"size:50;not null;uniqueIndex:idx_achievement_user_def" json:"achievement_id"`
	CurrentValue  int64      `gorm:"not null;default:0" json:"current_value"`
	TargetValue   int64      `gorm:"not null" json:"target_value"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Achievement) TableName() string {
	return "achievements"
}

// Unlocked 是否已解锁
func (a *Achievement) Unlocked() bool {
	return a.UnlockedAt != nil
}
