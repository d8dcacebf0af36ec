package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// EntryEvent 一次成功的自动保存产生的通知事件
type EntryEvent struct {
	TripID  uint64 `json:"tripId"`
	EntryID uint64 `json:"entryId"`
	Editor  string `json:"editor,omitempty"`
	Version uint64 `json:"version"`
}

// Broadcaster 实时侧的扇出，由 ws hub 实现
type Broadcaster interface {
	BroadcastEntrySaved(tripID uint64, evt EntryEvent)
}

type NotifierOptions struct {
	QueueSize    int           // 每个行程队列的容量
	EmitInterval time.Duration // 同一行程两次通知的最小间隔
	PollInterval time.Duration
}

// Notifier 把保存事件按行程分流到限流队列，到点后发往 Kafka 与 ws 房间；
// 另有一条指数退避的汇总队列，整批发出（供下游做摘要邮件之类的慢消费）。
// 队列本身非并发安全，Notifier 用一把锁统一串行化所有访问。
type Notifier struct {
	producer sarama.SyncProducer
	topic    string
	hub      Broadcaster

	mu     sync.Mutex
	queues map[uint64]*RateLimitedQueue[EntryEvent] // tripID -> 队列
	digest *ExponentialBackoffRateLimitedQueue[EntryEvent]

	queueSize    int
	emitInterval time.Duration
	poll         time.Duration
}

func NewNotifier(producer sarama.SyncProducer, topic string, hub Broadcaster, opt NotifierOptions) *Notifier {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 100
	}
	if opt.EmitInterval <= 0 {
		opt.EmitInterval = 30 * time.Second
	}
	if opt.PollInterval <= 0 {
		opt.PollInterval = time.Second
	}
	return &Notifier{
		producer:     producer,
		topic:        topic,
		hub:          hub,
		queues:       make(map[uint64]*RateLimitedQueue[EntryEvent]),
		digest:       NewExponentialBackoffRateLimitedQueue[EntryEvent](),
		queueSize:    opt.QueueSize,
		emitInterval: opt.EmitInterval,
		poll:         opt.PollInterval,
	}
}

// EntrySaved 入队。同一（条目，版本）事件不重复排队。
func (n *Notifier) EntrySaved(evt EntryEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q := n.queues[evt.TripID]
	if q == nil {
		q = NewRateLimitedQueue[EntryEvent](n.queueSize, n.emitInterval, true)
		n.queues[evt.TripID] = q
	}
	q.Add(evt)
	n.digest.Add(evt)
}

// Run 轮询循环，ctx 取消后退出
func (n *Notifier) Run(ctx context.Context) {
	t := time.NewTicker(n.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n.pollOnce(now)
		}
	}
}

// pollOnce 每个行程队列最多放行一个事件；汇总队列按退避节奏整批取走。
// 发送放在锁外，Kafka 抖动不挡住入队。
func (n *Notifier) pollOnce(now time.Time) {
	n.mu.Lock()
	var out []EntryEvent
	for id, q := range n.queues {
		evt, err := q.Next(now)
		if err != nil {
			// 空与限流都是常态，不当错误处理。
			// 空且限流窗口已过的队列直接回收：行程再来事件时重建，
			// 新队列立即可放行，和过期的 nextEmitAt 行为一致
			if errors.Is(err, ErrEmptyQueue) && !now.Before(q.nextEmitAt) {
				delete(n.queues, id)
			}
			continue
		}
		out = append(out, evt)
	}
	batch := n.digest.Emissions(now)
	n.mu.Unlock()

	for _, evt := range out {
		if n.hub != nil {
			n.hub.BroadcastEntrySaved(evt.TripID, evt)
		}
		if err := n.sendEvent(evt); err != nil {
			log.Printf("notify: kafka send failed trip=%d entry=%d v=%d err=%v",
				evt.TripID, evt.EntryID, evt.Version, err)
		}
	}
	if len(batch) > 0 {
		if err := n.sendDigest(batch); err != nil {
			log.Printf("notify: kafka digest send failed n=%d err=%v", len(batch), err)
		}
	}
}

func (n *Notifier) sendEvent(evt EntryEvent) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(evt.TripID, 10)),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = n.producer.SendMessage(msg)
	return err
}

func (n *Notifier) sendDigest(events []EntryEvent) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}
	b, err := json.Marshal(events)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder("digest"),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = n.producer.SendMessage(msg)
	return err
}
