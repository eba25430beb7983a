package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel 成长事件默认频道
const DefaultChannel = "progression_events"

// 事件类型
const (
	EventLevelUp             = "level_up"
	EventAchievementUnlocked = "achievement_unlocked"
	EventStreakMilestone     = "streak_milestone"
)

// 事件类型对应的提示文案
var EventMessages = map[string]string{
	EventLevelUp:             "恭喜升级",
	EventAchievementUnlocked: "解锁新成就",
	EventStreakMilestone:     "连续写作达成里程碑",
}

// EventMessage 成长事件消息
type EventMessage struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	UserID        int64     `json:"user_id"`
	Level         int       `json:"level,omitempty"`
	AchievementID string    `json:"achievement_id,omitempty"`
	StreakDays    int       `json:"streak_days,omitempty"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者，channel 为空时使用默认频道
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// PublishEvent 发布成长事件
func (p *Publisher) PublishEvent(ctx context.Context, msg *EventMessage) error {
	if msg.Message == "" {
		msg.Message = EventMessages[msg.Type]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event message: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client, channel string) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel}
}

// Subscribe 订阅成长事件，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*EventMessage)) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	// 等待订阅确认，避免订阅建立前的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", s.channel, err)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event EventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
