package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// 成就度量
const (
	MetricEntries = "entries"
	MetricWords   = "words"
	MetricPhotos  = "photos"
	MetricPrompts = "prompts"
	MetricStreak  = "streak"
	MetricLevel   = "level"
)

// Definition 成就定义：某个度量达到目标值即解锁
type Definition struct {
	ID          string
	Title       string
	Description string
	Metric      string
	Target      int64
}

var definitions = []Definition{
	{ID: "first_entry", Title: "第一篇日记", Description: "写下第一篇日记", Metric: MetricEntries, Target: 1},
	{ID: "entries_10", Title: "小有积累", Description: "累计写作 10 篇", Metric: MetricEntries, Target: 10},
	{ID: "entries_50", Title: "笔耕不辍", Description: "累计写作 50 篇", Metric: MetricEntries, Target: 50},
	{ID: "entries_100", Title: "百篇纪念", Description: "累计写作 100 篇", Metric: MetricEntries, Target: 100},
	{ID: "entries_365", Title: "一年之书", Description: "累计写作 365 篇", Metric: MetricEntries, Target: 365},
	{ID: "streak_3", Title: "三日不断", Description: "连续写作 3 天", Metric: MetricStreak, Target: 3},
	{ID: "streak_7", Title: "一周坚持", Description: "连续写作 7 天", Metric: MetricStreak, Target: 7},
	{ID: "streak_30", Title: "月度习惯", Description: "连续写作 30 天", Metric: MetricStreak, Target: 30},
	{ID: "streak_100", Title: "百日恒心", Description: "连续写作 100 天", Metric: MetricStreak, Target: 100},
	{ID: "words_1000", Title: "千字文", Description: "累计写作 1000 字", Metric: MetricWords, Target: 1000},
	{ID: "words_10000", Title: "万言书", Description: "累计写作 10000 字", Metric: MetricWords, Target: 10000},
	{ID: "words_50000", Title: "著作等身", Description: "累计写作 50000 字", Metric: MetricWords, Target: 50000},
	{ID: "photos_1", Title: "图文并茂", Description: "第一次在日记中添加照片", Metric: MetricPhotos, Target: 1},
	{ID: "photos_25", Title: "相册", Description: "累计添加 25 张照片", Metric: MetricPhotos, Target: 25},
	{ID: "prompts_1", Title: "灵感初现", Description: "第一次使用 AI 写作提示", Metric: MetricPrompts, Target: 1},
	{ID: "prompts_25", Title: "灵感常客", Description: "累计使用 25 次 AI 写作提示", Metric: MetricPrompts, Target: 25},
	{ID: "level_5", Title: "渐入佳境", Description: "达到 5 级", Metric: MetricLevel, Target: 5},
	{ID: "level_10", Title: "写作大师", Description: "达到 10 级", Metric: MetricLevel, Target: 10},
}

// Definitions 全部成就定义
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionByID 按 ID 查找成就定义
func DefinitionByID(id string) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// ProgressSnapshot 评估成就时的进度快照
type ProgressSnapshot struct {
	Entries       int64
	Words         int64
	Photos        int64
	PromptsUsed   int64
	CurrentStreak int64
	LongestStreak int64
	XP            int64
	Level         int
}

// Value 快照中某个度量的值
func (s ProgressSnapshot) Value(metric string) int64 {
	switch metric {
	case MetricEntries:
		return s.Entries
	case MetricWords:
		return s.Words
	case MetricPhotos:
		return s.Photos
	case MetricPrompts:
		return s.PromptsUsed
	case MetricStreak:
		return s.LongestStreak
	case MetricLevel:
		return int64(s.Level)
	default:
		return 0
	}
}

// UnlockEvent 新解锁的成就
type UnlockEvent struct {
	AchievementID string
	UnlockedAt    time.Time
}

// AchievementEvaluator 成就评估，每个成就对每个用户只解锁一次
type AchievementEvaluator struct {
	achRepo     *repository.AchievementRepository
	userRepo    *repository.UserRepository
	progression *ProgressionEngine
	runner      *txRunner
	guard       *integrityGuard
	metrics     *metrics.Collector
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewAchievementEvaluator(
	db *gorm.DB,
	achRepo *repository.AchievementRepository,
	userRepo *repository.UserRepository,
	progression *ProgressionEngine,
	cfg *config.Config,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *AchievementEvaluator {
	return &AchievementEvaluator{
		achRepo:     achRepo,
		userRepo:    userRepo,
		progression: progression,
		runner:      newTxRunner(db, cfg.Ledger, m, log),
		guard:       newIntegrityGuard(userRepo, log),
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// evaluateOnce 单轮评估：已解锁的行直接跳过，未解锁的刷新进度，达到目标即解锁
func (e *AchievementEvaluator) evaluateOnce(ctx context.Context, repo *repository.AchievementRepository, userID int64, snap ProgressSnapshot, now time.Time) ([]UnlockEvent, error) {
	rows, err := repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	byID := make(map[string]*model.Achievement, len(rows))
	for i := range rows {
		byID[rows[i].AchievementID] = &rows[i]
	}

	var unlocked []UnlockEvent
	for _, def := range definitions {
		row := byID[def.ID]
		if row != nil && row.Unlocked() {
			continue
		}

		value := snap.Value(def.Metric)
		if row == nil {
			row = &model.Achievement{UserID: userID, AchievementID: def.ID, CurrentValue: value, TargetValue: def.Target}
			if err := repo.Create(ctx, row); err != nil {
				return nil, fmt.Errorf("failed to create achievement %s: %w", def.ID, err)
			}
		}

		if value >= def.Target {
			ok, err := repo.Unlock(ctx, row.ID, value, now)
			if err != nil {
				return nil, fmt.Errorf("failed to unlock achievement %s: %w", def.ID, err)
			}
			if ok {
				unlocked = append(unlocked, UnlockEvent{AchievementID: def.ID, UnlockedAt: now})
			}
			continue
		}

		if row.CurrentValue != value || row.TargetValue != def.Target {
			if err := repo.UpdateProgress(ctx, row.ID, value, def.Target); err != nil {
				return nil, fmt.Errorf("failed to update achievement %s: %w", def.ID, err)
			}
		}
	}
	return unlocked, nil
}

// evaluate 事务内评估并为每个解锁发放经验；等级类成就随经验变化再评估，轮数以定义数为上限
func (e *AchievementEvaluator) evaluate(ctx context.Context, tx *gorm.DB, user *model.User, snap ProgressSnapshot, now time.Time) ([]UnlockEvent, error) {
	repo := e.achRepo.WithTx(tx)
	reward, err := e.progression.Reward(ActionAchievementUnlocked)
	if err != nil {
		reward = 0
	}

	var all []UnlockEvent
	for round := 0; round <= len(definitions); round++ {
		unlocked, err := e.evaluateOnce(ctx, repo, user.ID, snap, now)
		if err != nil {
			return nil, err
		}
		if len(unlocked) == 0 {
			break
		}
		all = append(all, unlocked...)

		if reward <= 0 {
			break
		}
		for range unlocked {
			if _, err := e.progression.award(user, reward); err != nil {
				return nil, err
			}
		}
		level := e.progression.LevelFor(user.XP)
		if level == snap.Level {
			break
		}
		snap.XP = user.XP
		snap.Level = level
	}
	return all, nil
}

// Evaluate 对快照评估成就，返回本次新解锁的成就
func (e *AchievementEvaluator) Evaluate(ctx context.Context, userID int64, snap ProgressSnapshot) ([]UnlockEvent, error) {
	var (
		events []UnlockEvent
		prev   int
		level  int
	)
	err := e.runner.run(ctx, userID, func(tx *gorm.DB) error {
		userRepo := e.userRepo.WithTx(tx)
		user, err := loadUser(ctx, userRepo, userID)
		if err != nil {
			return err
		}
		if user.ProgressionLocked {
			return ErrProgressionLocked
		}
		stats, err := e.progression.statsRepo.WithTx(tx).Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}
		if err := checkProgression(user, stats); err != nil {
			return err
		}

		prev = e.progression.LevelFor(user.XP)
		unlocked, err := e.evaluate(ctx, tx, user, snap, e.now())
		if err != nil {
			return err
		}
		if len(unlocked) > 0 {
			if err := saveUser(ctx, userRepo, user); err != nil {
				return err
			}
		}
		level = e.progression.LevelFor(user.XP)
		events = unlocked
		return nil
	})
	if err != nil {
		return nil, e.guard.handle(ctx, userID, err)
	}

	e.recordUnlocks(userID, events)
	if level > prev {
		e.metrics.LevelUp()
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"level":   level,
		}).Info("user leveled up")
	}
	return events, nil
}

func (e *AchievementEvaluator) recordUnlocks(userID int64, events []UnlockEvent) {
	for _, ev := range events {
		e.metrics.AchievementUnlocked(ev.AchievementID)
		e.log.WithFields(logrus.Fields{
			"user_id":     userID,
			"achievement": ev.AchievementID,
		}).Info("achievement unlocked")
	}
}

// List 用户的成就进度，未评估过的定义以零进度返回
func (e *AchievementEvaluator) List(ctx context.Context, userID int64) ([]model.Achievement, error) {
	rows, err := e.achRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Achievement, len(rows))
	for _, r := range rows {
		byID[r.AchievementID] = r
	}

	out := make([]model.Achievement, 0, len(definitions))
	for _, def := range definitions {
		if r, ok := byID[def.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, model.Achievement{UserID: userID, AchievementID: def.ID, TargetValue: def.Target})
	}
	return out, nil
}
