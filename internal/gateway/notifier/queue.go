package notifier

import (
	"context"
	"sync/atomic"

	"upbot/internal/logger"
)

var log = logger.For("Notifier")

const defaultQueueSize = 32

// Queue decouples callers from delivery. Notify never blocks; messages are
// dropped when the buffer is full.
type Queue struct {
	sink    TextNotifier
	ch      chan Message
	dropped atomic.Int64
}

func NewQueue(sink TextNotifier, size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{sink: sink, ch: make(chan Message, size)}
}

func (q *Queue) Notify(msg Message) {
	if q == nil {
		return
	}
	select {
	case q.ch <- msg:
	default:
		q.dropped.Add(1)
		log.Warnf("queue full, dropped %q", msg.Title)
	}
}

// Dropped counts messages lost to a full buffer.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Run delivers until ctx is canceled. Pending messages are abandoned.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.ch:
			if err := q.sink.SendText(ctx, msg.Markdown()); err != nil && ctx.Err() == nil {
				log.Warnf("send %q: %v", msg.Title, err)
			}
		}
	}
}
