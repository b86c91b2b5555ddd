package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.Queue = (*Queue)(nil)

type queued struct {
	msg       driven.QueueMessage
	visibleAt time.Time
	seq       uint64
}

// Queue is an in-memory implementation of driven.Queue.
type Queue struct {
	mu                sync.Mutex
	messages          map[string]*queued
	dead              []driven.QueueMessage
	seq               uint64
	visibilityTimeout time.Duration
	maxReceive        int
	now               func() time.Time
}

// NewQueue creates an in-memory queue.
// maxReceive <= 0 disables dead-lettering.
func NewQueue(visibilityTimeout time.Duration, maxReceive int) *Queue {
	return &Queue{
		messages:          make(map[string]*queued),
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		now:               time.Now,
	}
}

// Enqueue stores a payload.
func (q *Queue) Enqueue(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	id := uuid.NewString()
	q.seq++
	q.messages[id] = &queued{
		seq:       q.seq,
		msg:       driven.QueueMessage{ID: id, Body: append([]byte(nil), body...), EnqueuedAt: now},
		visibleAt: now,
	}
	return id, nil
}

// Receive returns up to max visible messages, oldest first.
func (q *Queue) Receive(_ context.Context, max int) ([]driven.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	visible := make([]*queued, 0, len(q.messages))
	for _, m := range q.messages {
		if !m.visibleAt.After(now) {
			visible = append(visible, m)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].seq < visible[j].seq
	})

	out := make([]driven.QueueMessage, 0, max)
	for _, m := range visible {
		if len(out) >= max {
			break
		}
		if q.maxReceive > 0 && m.msg.ReceiveCount >= q.maxReceive {
			q.dead = append(q.dead, m.msg)
			delete(q.messages, m.msg.ID)
			continue
		}
		m.msg.ReceiveCount++
		m.visibleAt = now.Add(q.visibilityTimeout)
		out = append(out, m.msg)
	}
	return out, nil
}

// Ack deletes a received message.
func (q *Queue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.messages, id)
	return nil
}

// DeadLetters returns up to limit dead-lettered messages.
func (q *Queue) DeadLetters(_ context.Context, limit int) ([]driven.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit >= 0 && len(q.dead) > limit {
		return append([]driven.QueueMessage(nil), q.dead[:limit]...), nil
	}
	return append([]driven.QueueMessage(nil), q.dead...), nil
}

// Close releases resources (no-op for memory store).
func (q *Queue) Close() error {
	return nil
}
