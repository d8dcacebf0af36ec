package notify

import "time"

// 默认节奏："每分钟查一次，翻倍直到一小时封顶"
const (
	DefaultInitialEmitInterval = 60 * time.Second
	DefaultBackoffFactor       = 2
	DefaultMaxEmitInterval     = 3600 * time.Second
)

// ExponentialBackoffRateLimitedQueue 无界累积，每次真实发射后延迟翻倍
// 距上次排定发射超过 max 的安静期会把退避回落到初始值，
// 避免偶发的忙时段让队列永远停在最慢档。非并发安全，同 RateLimitedQueue。
type ExponentialBackoffRateLimitedQueue[T any] struct {
	items      []T
	delay      time.Duration // 当前退避，0 表示下次从 initial 起步
	nextEmitAt time.Time
	initial    time.Duration
	factor     int
	max        time.Duration
}

func NewExponentialBackoffRateLimitedQueue[T any]() *ExponentialBackoffRateLimitedQueue[T] {
	return NewExponentialBackoffRateLimitedQueueWith[T](
		DefaultInitialEmitInterval, DefaultBackoffFactor, DefaultMaxEmitInterval)
}

func NewExponentialBackoffRateLimitedQueueWith[T any](initial time.Duration, factor int, max time.Duration) *ExponentialBackoffRateLimitedQueue[T] {
	return &ExponentialBackoffRateLimitedQueue[T]{initial: initial, factor: factor, max: max}
}

// Add 无条件入队（不去重、不设上限）
func (q *ExponentialBackoffRateLimitedQueue[T]) Add(item T) {
	q.items = append(q.items, item)
}

// Emissions 到点后整批取走全部元素并推进退避；
// 队列空或未到 nextEmitAt 时返回 nil 且状态不变。
// 回落判断先于增长：安静期超过 max 先把退避清零，再从清零后的基线增长。
func (q *ExponentialBackoffRateLimitedQueue[T]) Emissions(now time.Time) []T {
	if len(q.items) == 0 || now.Before(q.nextEmitAt) {
		return nil
	}
	out := q.items
	q.items = nil

	if now.Sub(q.nextEmitAt) > q.max {
		q.delay = 0
	}
	if q.delay == 0 {
		q.delay = q.initial
	} else {
		q.delay *= time.Duration(q.factor)
	}
	if q.delay > q.max {
		q.delay = q.max
	}
	q.nextEmitAt = now.Add(q.delay)
	return out
}

// Clear 清空元素，退避状态保留
func (q *ExponentialBackoffRateLimitedQueue[T]) Clear() {
	q.items = nil
}

func (q *ExponentialBackoffRateLimitedQueue[T]) Len() int { return len(q.items) }
