package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/repository"
)

// integrityGuard 发现不变量被破坏时锁定该用户的成长数据
type integrityGuard struct {
	userRepo *repository.UserRepository
	log      logrus.FieldLogger
}

func newIntegrityGuard(userRepo *repository.UserRepository, log logrus.FieldLogger) *integrityGuard {
	return &integrityGuard{userRepo: userRepo, log: log}
}

// checkAccount 账本字段
func checkAccount(user *model.User) error {
	var reason string
	switch {
	case user.PromptsRemaining < 0:
		reason = "negative prompts_remaining"
	case user.PromptsUsedThisMonth < 0:
		reason = "negative prompts_used_this_month"
	case user.StorageUsedMB < 0:
		reason = "negative storage_used_mb"
	default:
		return nil
	}
	return &invariantViolation{userID: user.ID, reason: reason}
}

// checkProgression 经验与连续天数字段
func checkProgression(user *model.User, stats *model.UserStats) error {
	var reason string
	switch {
	case user.XP < 0:
		reason = "negative xp"
	case stats.CurrentStreak < 0:
		reason = "negative current_streak"
	case stats.LongestStreak < stats.CurrentStreak:
		reason = "longest_streak below current_streak"
	case stats.TotalEntries < 0 || stats.TotalWords < 0 || stats.TotalPhotos < 0 || stats.TotalPromptsUsed < 0:
		reason = "negative activity counter"
	default:
		return nil
	}
	return &invariantViolation{userID: user.ID, reason: reason}
}

// handle 处理事务返回的错误。不变量被破坏时在事务外单独写入锁定标记
func (g *integrityGuard) handle(ctx context.Context, userID int64, err error) error {
	var v *invariantViolation
	if !errors.As(err, &v) {
		return err
	}

	g.log.WithFields(logrus.Fields{
		"user_id": userID,
		"reason":  v.reason,
	}).Error("invariant violated, progression set read-only")

	if lockErr := g.userRepo.SetProgressionLocked(ctx, userID, true, v.reason); lockErr != nil {
		g.log.WithError(lockErr).WithField("user_id", userID).Error("failed to lock user progression")
	}
	return ErrInconsistentState
}
