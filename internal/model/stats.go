package model

import (
	"time"
)

// UserStats 连续写作天数与累计活动计数
type UserStats struct {
	UserID           int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CurrentStreak    int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate *time.Time `gorm:"type:date" json:"last_activity_date,omitempty"`
	TotalEntries     int        `gorm:"not null;default:0" json:"total_entries"`
	TotalWords       int        `gorm:"not null;default:0" json:"total_words"`
	TotalPhotos      int        `gorm:"not null;default:0" json:"total_photos"`
	TotalPromptsUsed int        `gorm:"not null;default:0" json:"total_prompts_used"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (UserStats) TableName() string {
	return "user_stats"
}
