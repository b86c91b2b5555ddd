// Package redis provides a per-user append lock shared across processes,
// built on redsync over a go-redis client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure Locker implements the interface.
var _ driven.AppendLocker = (*Locker)(nil)

// Defaults applied by New.
const (
	DefaultTTL        = 10 * time.Second
	DefaultKeyPrefix  = "doraemo:append:"
	DefaultRetryDelay = 50 * time.Millisecond
	pingTimeout       = 5 * time.Second
)

// Options configures a Locker.
type Options struct {
	// URL is a redis:// URL or a comma-separated list of URLs / host:port
	// addresses for a cluster.
	URL string

	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration

	// KeyPrefix namespaces lock keys.
	KeyPrefix string
}

// Locker is a driven.AppendLocker backed by Redis.
type Locker struct {
	client goredislib.UniversalClient
	rs     *redsync.Redsync
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// New connects to Redis and returns a locker.
func New(ctx context.Context, opts Options) (*Locker, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL must be provided")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	uopts, err := buildUniversalOptions(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := goredislib.NewUniversalClient(uopts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log := logger.Component("redis-lock")
	log.Debug("connected to redis at %s", strings.Join(uopts.Addrs, ","))
	return &Locker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		log:    log,
	}, nil
}

// Lock blocks until the user's lock is held or ctx is done.
func (l *Locker) Lock(ctx context.Context, userKey string) (func() error, error) {
	mutex := l.rs.NewMutex(l.prefix+userKey,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(tries(l.ttl)),
		redsync.WithRetryDelay(DefaultRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("acquiring lock for %s: %w", userKey, err)
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			// Release even if the caller's context is already done.
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			defer cancel()
			var ok bool
			ok, err = mutex.UnlockContext(ctx)
			if err == nil && !ok {
				err = fmt.Errorf("lock for %s expired before release", userKey)
			}
		})
		return err
	}, nil
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// tries lets a waiter retry for about as long as a holder can keep the lock.
func tries(ttl time.Duration) int {
	n := int(ttl / DefaultRetryDelay)
	if n < 1 {
		return 1
	}
	return n
}

// buildUniversalOptions accepts one or more comma-separated redis:// URLs
// or bare host:port addresses.
func buildUniversalOptions(raw string) (*goredislib.UniversalOptions, error) {
	opts := &goredislib.UniversalOptions{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := goredislib.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
		if opts.DialTimeout == 0 {
			opts.DialTimeout = parsed.DialTimeout
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, errors.New("no redis addresses provided")
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		// Cluster mode has no database selection.
		opts.DB = 0
	}
	return opts, nil
}
