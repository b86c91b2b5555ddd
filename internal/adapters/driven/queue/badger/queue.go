// Package badger provides a persistent at-least-once queue on BadgerDB.
//
// Keys:
//
//	msg:{id}                     message record (JSON)
//	idx:{visibleAt}:{seq}:{id}   visibility index, scanned in key order
//	dlq:{seq}:{id}               dead-lettered message record (JSON)
//
// Receive claims messages by moving their index entry into the future by
// the visibility timeout, so an unacknowledged message reappears once the
// timeout passes.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure Queue implements the interface.
var _ driven.Queue = (*Queue)(nil)

// Defaults applied by New.
const (
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultMaxReceive        = 5
	maxTxnRetries            = 25
)

var (
	msgPrefix = []byte("msg:")
	idxPrefix = []byte("idx:")
	dlqPrefix = []byte("dlq:")
	seqKey    = []byte("seq")
)

// record is the stored form of a message.
type record struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq"`
	Body         []byte    `json:"body"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
}

func (r record) message() driven.QueueMessage {
	return driven.QueueMessage{ID: r.ID, Body: r.Body, ReceiveCount: r.ReceiveCount, EnqueuedAt: r.EnqueuedAt}
}

// Options configures a Queue.
type Options struct {
	// Dir is the Badger directory. Empty opens an in-memory queue.
	Dir string

	// VisibilityTimeout hides a received message before redelivery.
	VisibilityTimeout time.Duration

	// MaxReceive is the number of deliveries before dead-lettering.
	MaxReceive int
}

// Queue is a driven.Queue backed by BadgerDB.
type Queue struct {
	db                *badger.DB
	seq               *badger.Sequence
	visibilityTimeout time.Duration
	maxReceive        int
	now               func() time.Time
	log               *logger.Logger
}

// New opens (or creates) a Badger-backed queue.
func New(opts Options) (*Queue, error) {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.MaxReceive <= 0 {
		opts.MaxReceive = DefaultMaxReceive
	}

	log := logger.Component("queue")
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log})
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger queue: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("leasing queue sequence: %w", err)
	}

	return &Queue{
		db:                db,
		seq:               seq,
		visibilityTimeout: opts.VisibilityTimeout,
		maxReceive:        opts.MaxReceive,
		now:               time.Now,
		log:               log,
	}, nil
}

// Enqueue stores a payload and returns its message ID.
func (q *Queue) Enqueue(_ context.Context, body []byte) (string, error) {
	seq, err := q.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	now := q.now()
	rec := record{
		ID:         uuid.NewString(),
		Seq:        seq,
		Body:       append([]byte(nil), body...),
		EnqueuedAt: now,
		VisibleAt:  now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshalling message: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec), nil)
	})
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return rec.ID, nil
}

// Receive returns up to max visible messages, oldest first.
func (q *Queue) Receive(ctx context.Context, max int) ([]driven.QueueMessage, error) {
	if max <= 0 {
		return []driven.QueueMessage{}, nil
	}
	var out []driven.QueueMessage
	err := q.retry(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = q.claim(txn, max)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return out, nil
}

// claim moves up to max visible messages behind the visibility timeout.
//
//nolint:gocognit // index scan with dead-lettering
func (q *Queue) claim(txn *badger.Txn, max int) ([]driven.QueueMessage, error) {
	now := q.now()
	cutoff := fmt.Sprintf("%s%020d", idxPrefix, now.UnixNano())

	// 1. COLLECT VISIBLE
	var visible []record
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = idxPrefix
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		if key[:len(cutoff)] > cutoff {
			break
		}
		id := key[strings.LastIndexByte(key, ':')+1:]
		rec, err := getRecord(txn, msgKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			it.Close()
			return nil, err
		}
		visible = append(visible, rec)
	}
	it.Close()
	sort.Slice(visible, func(i, j int) bool { return visible[i].Seq < visible[j].Seq })

	// 2. CLAIM OR DEAD-LETTER
	out := make([]driven.QueueMessage, 0, max)
	for _, rec := range visible {
		if len(out) >= max {
			break
		}
		if err := txn.Delete(indexKey(rec)); err != nil {
			return nil, err
		}
		if rec.ReceiveCount >= q.maxReceive {
			if err := q.deadLetter(txn, rec); err != nil {
				return nil, err
			}
			continue
		}
		rec.ReceiveCount++
		rec.VisibleAt = now.Add(q.visibilityTimeout)
		if err := putRecord(txn, msgKey(rec.ID), rec); err != nil {
			return nil, err
		}
		if err := txn.Set(indexKey(rec), nil); err != nil {
			return nil, err
		}
		out = append(out, rec.message())
	}
	return out, nil
}

func (q *Queue) deadLetter(txn *badger.Txn, rec record) error {
	q.log.Warn("dead-lettering message %s after %d deliveries", rec.ID, rec.ReceiveCount)
	if err := txn.Delete(msgKey(rec.ID)); err != nil {
		return err
	}
	return putRecord(txn, dlqKey(rec), rec)
}

// Ack deletes a received message. Unknown IDs are ignored.
func (q *Queue) Ack(ctx context.Context, id string) error {
	err := q.retry(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, msgKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(rec)); err != nil {
			return err
		}
		return txn.Delete(msgKey(id))
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// DeadLetters returns up to limit dead-lettered messages, oldest first.
// A negative limit returns all of them.
func (q *Queue) DeadLetters(_ context.Context, limit int) ([]driven.QueueMessage, error) {
	out := []driven.QueueMessage{}
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = dlqPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit >= 0 && len(out) >= limit {
				break
			}
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec.message())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}
	return out, nil
}

// Close releases the sequence lease and closes the database.
func (q *Queue) Close() error {
	if err := q.seq.Release(); err != nil {
		q.log.Warn("release sequence: %v", err)
	}
	return q.db.Close()
}

// retry runs fn in an update transaction, retrying on write conflicts
// from concurrent consumers.
func (q *Queue) retry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = q.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return err
}

func msgKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", msgPrefix, id))
}

func indexKey(rec record) []byte {
	// Zero padded so lexical order matches numeric order.
	return []byte(fmt.Sprintf("%s%020d:%020d:%s", idxPrefix, rec.VisibleAt.UnixNano(), rec.Seq, rec.ID))
}

func dlqKey(rec record) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", dlqPrefix, rec.Seq, rec.ID))
}

func getRecord(txn *badger.Txn, key []byte) (record, error) {
	var rec record
	item, err := txn.Get(key)
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, key []byte, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// badgerLogger routes Badger's internal logging through the process logger.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(format), args...)
}
