// Package eventbus implements the core's publish/subscribe fan-out
// (§4.8). Delivery is best-effort and must never block the commit
// thread: each subscriber owns a bounded queue, and a full queue drops
// the event rather than stalling the publisher.
package eventbus

import (
	"sync"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/metrics"
)

// Topic names the two event streams the core emits.
type Topic string

const (
	TopicBlock       Topic = "block"
	TopicTransaction Topic = "transaction"
)

// BlockEvent is published once per committed block (§4.5 step 4).
type BlockEvent struct {
	Block     *chaintypes.Block
	Direction chaintypes.Direction
}

// TransactionEvent is published once per transaction within a committed
// block, and — when config.PublishMempoolTransactions is enabled — for
// accepted mempool transactions outside of any block apply.
type TransactionEvent struct {
	Tx        *chaintypes.Transaction
	Direction chaintypes.Direction
}

// DefaultQueueDepth is the number of pending events buffered per
// subscriber before events are dropped.
const DefaultQueueDepth = 256

// estimatedEventSize is used only to log a human-readable worst-case
// buffer size; it has no bearing on behavior.
const estimatedEventSize = 256 * datasize.B

type subscriber struct {
	ch chan interface{}
}

// Bus is the Event Bus. The zero value is not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Topic][]*subscriber
	queueDepth  int
}

func New() *Bus {
	return &Bus{subscribers: make(map[Topic][]*subscriber), queueDepth: DefaultQueueDepth}
}

// Subscribe registers a new subscriber for topic and returns a channel
// delivering that topic's events in publish order. Call Unsubscribe with
// the same channel to stop delivery.
func (b *Bus) Subscribe(topic Topic) <-chan interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscriber{ch: make(chan interface{}, b.queueDepth)}
	b.subscribers[topic] = append(b.subscribers[topic], s)
	log.Info("eventbus subscriber added", "topic", topic, "queueDepth", b.queueDepth,
		"worstCaseBuffer", (datasize.ByteSize(b.queueDepth) * datasize.ByteSize(estimatedEventSize)).String())
	return s.ch
}

// Unsubscribe removes the subscriber owning ch from topic.
func (b *Bus) Unsubscribe(topic Topic, ch <-chan interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, s := range subs {
		if s.ch == ch {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every topic subscriber. The subscriber list
// is copied under the lock and released before delivery, so a slow
// subscriber never holds up Subscribe/Unsubscribe or other topics; a
// subscriber whose queue is full has the event dropped and counted,
// never blocking the caller (§5).
func (b *Bus) Publish(topic Topic, event interface{}) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subscribers[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			metrics.EventBusDropped.WithLabelValues(string(topic)).Inc()
			log.Warn("eventbus subscriber queue full, dropping event", "topic", topic)
		}
	}
}
