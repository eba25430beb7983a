package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 活动类型
const (
	ActivityEntry  = "entry"
	ActivityPrompt = "prompt"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// ActivityMessage 异步上报的日记活动
type ActivityMessage struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	WordCount  int       `json:"word_count,omitempty"`
	PhotoCount int       `json:"photo_count,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将活动加入队列
func (q *Queue) Push(ctx context.Context, msg *ActivityMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取活动（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*ActivityMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg ActivityMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// DeadLetter 处理失败的消息写入死信队列
func (q *Queue) DeadLetter(ctx context.Context, msg *ActivityMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.client.LPush(ctx, q.queueName+":dead", data).Err()
}

// DeadLength 死信队列长度
func (q *Queue) DeadLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName+":dead").Result()
}
