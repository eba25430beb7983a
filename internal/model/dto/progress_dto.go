package dto

import "time"

// RecordEntryRequest 日记创建后上报的活动
type RecordEntryRequest struct {
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	WordCount  int        `json:"word_count" binding:"min=0"`
	PhotoCount int        `json:"photo_count" binding:"min=0"`
}

// ProgressInfo 成长信息
type ProgressInfo struct {
	XP               int64  `json:"xp"`
	Level            int    `json:"level"`
	NextLevelXP      int64  `json:"next_level_xp,omitempty"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"`
	TotalEntries     int    `json:"total_entries"`
	TotalWords       int    `json:"total_words"`
	TotalPhotos      int    `json:"total_photos"`
	TotalPromptsUsed int    `json:"total_prompts_used"`
	Locked           bool   `json:"locked,omitempty"`
}

// AchievementInfo 成就信息
type AchievementInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CurrentValue int64  `json:"current_value"`
	TargetValue  int64  `json:"target_value"`
	UnlockedAt   string `json:"unlocked_at,omitempty"`
}

// EventInfo 成长事件（升级、解锁成就）
type EventInfo struct {
	Type          string `json:"type"`
	Level         int    `json:"level,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
	StreakDays    int    `json:"streak_days,omitempty"`
	At            string `json:"at"`
}

// ActivityResponse 活动处理结果
type ActivityResponse struct {
	Progress *ProgressInfo `json:"progress"`
	Events   []EventInfo   `json:"events"`
}
