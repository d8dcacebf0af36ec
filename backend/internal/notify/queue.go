package notify

import (
	"errors"
	"time"
)

// 两个哨兵错误属于正常控制流：队列空了、被限流都不是故障，调用方照常轮询即可
var (
	ErrEmptyQueue  = errors.New("queue is empty")
	ErrRateLimited = errors.New("emission rate limited")
)

// RateLimitedQueue 固定间隔限流的有界 FIFO
// 非并发安全：由唯一属主串行调用（例如 Notifier 的轮询循环持锁访问）
type RateLimitedQueue[T comparable] struct {
	items        []T
	maxSize      int
	emitInterval time.Duration
	uniqueOnly   bool
	nextEmitAt   time.Time
}

func NewRateLimitedQueue[T comparable](maxSize int, emitInterval time.Duration, uniqueOnly bool) *RateLimitedQueue[T] {
	return &RateLimitedQueue[T]{maxSize: maxSize, emitInterval: emitInterval, uniqueOnly: uniqueOnly}
}

// Add 入队，返回是否真的加入了
// uniqueOnly 时已有相同元素则不重复入队；满了静默淘汰最旧元素（环形语义）
func (q *RateLimitedQueue[T]) Add(item T) bool {
	if q.uniqueOnly {
		for _, it := range q.items {
			if it == item {
				return false
			}
		}
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
	return true
}

// Next 弹出最旧元素。now 为零值时取当前时间。
// 空队列返回 ErrEmptyQueue；还没到 nextEmitAt 返回 ErrRateLimited 且不出队。
func (q *RateLimitedQueue[T]) Next(now time.Time) (T, error) {
	var zero T
	if len(q.items) == 0 {
		return zero, ErrEmptyQueue
	}
	if now.IsZero() {
		now = time.Now()
	}
	if now.Before(q.nextEmitAt) {
		return zero, ErrRateLimited
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.nextEmitAt = now.Add(q.emitInterval)
	return item, nil
}

// Clear 清空元素，不改动 nextEmitAt
func (q *RateLimitedQueue[T]) Clear() {
	q.items = nil
}

func (q *RateLimitedQueue[T]) Len() int { return len(q.items) }
