package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// 奖励动作
const (
	ActionEntryCreated        = "entry_created"
	ActionStreakMilestone     = "streak_milestone"
	ActionAchievementUnlocked = "achievement_unlocked"
	ActionPromptUsed          = "prompt_used"
)

// XPResult 经验变化结果
type XPResult struct {
	XP            int64
	Level         int
	PreviousLevel int
	LeveledUp     bool
}

// ProgressionEngine 经验与等级。等级不落库，总是由经验值推导
type ProgressionEngine struct {
	userRepo   *repository.UserRepository
	statsRepo  *repository.StatsRepository
	runner     *txRunner
	guard      *integrityGuard
	thresholds []int64
	rewards    map[string]int64
	metrics    *metrics.Collector
	log        logrus.FieldLogger
}

func NewProgressionEngine(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	statsRepo *repository.StatsRepository,
	cfg *config.Config,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *ProgressionEngine {
	thresholds := make([]int64, len(cfg.Progression.LevelThresholds))
	for i, th := range cfg.Progression.LevelThresholds {
		thresholds[i] = int64(th)
	}
	rewards := make(map[string]int64, len(cfg.Progression.Rewards))
	for action, xp := range cfg.Progression.Rewards {
		rewards[action] = int64(xp)
	}
	return &ProgressionEngine{
		userRepo:   userRepo,
		statsRepo:  statsRepo,
		runner:     newTxRunner(db, cfg.Ledger, m, log),
		guard:      newIntegrityGuard(userRepo, log),
		thresholds: thresholds,
		rewards:    rewards,
		metrics:    m,
		log:        log,
	}
}

// LevelFor 满足 threshold[L] <= xp 的最大等级，从 1 开始
func (e *ProgressionEngine) LevelFor(xp int64) int {
	level := 1
	for i, th := range e.thresholds {
		if xp < th {
			break
		}
		level = i + 1
	}
	return level
}

// NextLevelXP 升到下一级所需的经验总量，已满级时返回 0
func (e *ProgressionEngine) NextLevelXP(xp int64) int64 {
	level := e.LevelFor(xp)
	if level >= len(e.thresholds) {
		return 0
	}
	return e.thresholds[level]
}

// Reward 动作对应的经验奖励
func (e *ProgressionEngine) Reward(action string) (int64, error) {
	xp, ok := e.rewards[action]
	if !ok {
		return 0, ErrUnknownAction
	}
	return xp, nil
}

// award 在内存中给用户加经验
func (e *ProgressionEngine) award(user *model.User, amount int64) (*XPResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidXPAmount
	}
	prev := e.LevelFor(user.XP)
	user.XP += amount
	level := e.LevelFor(user.XP)
	return &XPResult{
		XP:            user.XP,
		Level:         level,
		PreviousLevel: prev,
		LeveledUp:     level > prev,
	}, nil
}

// AwardXP 给用户增加经验
func (e *ProgressionEngine) AwardXP(ctx context.Context, userID int64, amount int64) (*XPResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidXPAmount
	}

	var result *XPResult
	err := e.runner.run(ctx, userID, func(tx *gorm.DB) error {
		userRepo := e.userRepo.WithTx(tx)
		user, err := loadUser(ctx, userRepo, userID)
		if err != nil {
			return err
		}
		if user.ProgressionLocked {
			return ErrProgressionLocked
		}
		stats, err := e.statsRepo.WithTx(tx).Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}
		if err := checkProgression(user, stats); err != nil {
			return err
		}

		res, err := e.award(user, amount)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, userRepo, user); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, e.guard.handle(ctx, userID, err)
	}

	if result.LeveledUp {
		e.metrics.LevelUp()
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"level":   result.Level,
		}).Info("user leveled up")
	}
	return result, nil
}

// AwardForAction 按奖励表给用户加经验
func (e *ProgressionEngine) AwardForAction(ctx context.Context, userID int64, action string) (*XPResult, error) {
	xp, err := e.Reward(action)
	if err != nil {
		return nil, err
	}
	return e.AwardXP(ctx, userID, xp)
}
