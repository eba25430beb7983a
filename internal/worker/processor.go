package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/journal_server/internal/pkg/queue"
	"github.com/qs3c/journal_server/internal/service"
)

const (
	// maxAttempts 临时错误最多投递次数，超过后进入死信队列
	maxAttempts = 3

	defaultPopTimeout = 5 * time.Second
)

// Processor 异步活动消费者，把队列中的日记与提示活动交给成长流水线
type Processor struct {
	activity   *service.ActivityService
	queue      *queue.Queue
	log        logrus.FieldLogger
	popTimeout time.Duration
}

// NewProcessor 创建活动处理器
func NewProcessor(activity *service.ActivityService, q *queue.Queue, log logrus.FieldLogger) *Processor {
	return &Processor{
		activity:   activity,
		queue:      q,
		log:        log,
		popTimeout: defaultPopTimeout,
	}
}

// Process 处理单条活动消息
func (p *Processor) Process(ctx context.Context, msg *queue.ActivityMessage) error {
	var err error
	switch msg.Kind {
	case queue.ActivityEntry:
		_, err = p.activity.RecordEntry(ctx, msg.UserID, service.EntryActivity{
			At:         msg.OccurredAt,
			WordCount:  msg.WordCount,
			PhotoCount: msg.PhotoCount,
		})
	case queue.ActivityPrompt:
		_, err = p.activity.RecordPromptUse(ctx, msg.UserID)
	default:
		err = fmt.Errorf("%w: unknown kind %q", service.ErrInvalidActivity, msg.Kind)
	}
	return err
}

// permanent 重试也不会成功的错误
func permanent(err error) bool {
	for _, target := range []error{
		service.ErrInvalidActivity,
		service.ErrUserNotFound,
		service.ErrInsufficientBalance,
		service.ErrProgressionLocked,
		service.ErrInconsistentState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Handle 处理消息并按错误类型重新入队或写入死信队列
func (p *Processor) Handle(ctx context.Context, msg *queue.ActivityMessage) {
	log := p.log.WithFields(logrus.Fields{
		"activity_id": msg.ID,
		"kind":        msg.Kind,
		"user_id":     msg.UserID,
		"attempt":     msg.Attempt,
	})

	err := p.Process(ctx, msg)
	if err == nil {
		log.Debug("activity processed")
		return
	}

	if !permanent(err) && msg.Attempt+1 < maxAttempts {
		msg.Attempt++
		pushErr := p.queue.Push(ctx, msg)
		if pushErr == nil {
			log.WithError(err).Warn("activity failed, requeued")
			return
		}
		log.WithError(pushErr).Error("failed to requeue activity")
	}

	log.WithError(err).Warn("activity moved to dead letter queue")
	if dlErr := p.queue.DeadLetter(ctx, msg); dlErr != nil {
		log.WithError(dlErr).Error("failed to dead-letter activity")
	}
}

// Run 启动 workers 个消费者，ctx 取消后等待全部退出
func (p *Processor) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	p.log.WithField("workers", workers).Info("activity workers started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(ctx, workerID)
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("activity workers stopped")
	return err
}

func (p *Processor) loop(ctx context.Context, workerID int) {
	log := p.log.WithField("worker", workerID)
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to pop activity")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		// 出队后的消息处理完再退出，避免丢失
		p.Handle(context.WithoutCancel(ctx), msg)
	}
}
