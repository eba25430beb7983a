package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// txRunner 在单个数据库事务内执行用户聚合的修改
// 乐观锁冲突时整个事务回滚，按退避策略重新执行
type txRunner struct {
	db       *gorm.DB
	executor failsafe.Executor[any]
	metrics  *metrics.Collector
	log      logrus.FieldLogger
}

func newTxRunner(db *gorm.DB, cfg config.LedgerConfig, m *metrics.Collector, log logrus.FieldLogger) *txRunner {
	policy := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return isConflict(err)
		}).
		ReturnLastFailure().
		Build()

	return &txRunner{
		db:       db,
		executor: failsafe.With[any](policy),
		metrics:  m,
		log:      log,
	}
}

// isConflict 版本冲突或并发插入了同一唯一行，重跑整个事务即可
func isConflict(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, repository.ErrConcurrentInsert)
}

// run 执行 fn；fn 内的所有读写必须使用传入的 tx
func (r *txRunner) run(ctx context.Context, userID int64, fn func(tx *gorm.DB) error) error {
	_, err := r.executor.WithContext(ctx).Get(func() (any, error) {
		err := r.db.WithContext(ctx).Transaction(fn)
		if isConflict(err) {
			r.metrics.VersionConflict()
			r.log.WithField("user_id", userID).Debug("user aggregate version conflict, retrying")
		}
		return nil, err
	})
	if err != nil && isConflict(err) {
		r.log.WithField("user_id", userID).Warn("user aggregate update gave up after retries")
		return ErrConcurrentUpdate
	}
	return err
}

// loadUser 读取用户，不存在时返回 ErrUserNotFound
func loadUser(ctx context.Context, repo *repository.UserRepository, userID int64) (*model.User, error) {
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// saveUser 以版本号为条件写回用户，冲突映射为 ErrConcurrentUpdate
func saveUser(ctx context.Context, repo *repository.UserRepository, user *model.User) error {
	if err := repo.CompareAndSwap(ctx, user); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrentUpdate
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
