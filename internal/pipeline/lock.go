package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker serialises stage runs per submission.
type Locker interface {
	Acquire(ctx context.Context, submissionID uint) (release func(), err error)
}

// MemoryLocker is a keyed mutex for single-process deployments. Idle slots are dropped once
// no holder or waiter references them.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[uint]*memorySlot
	wait  time.Duration
}

type memorySlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker builds an in-process locker. wait bounds how long Acquire blocks; zero waits
// until the context is done.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{slots: make(map[uint]*memorySlot), wait: wait}
}

func (l *MemoryLocker) retain(id uint) *memorySlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[id]
	if !ok {
		slot = &memorySlot{ch: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) drop(id uint, slot *memorySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}

// Acquire blocks until the submission is free, the wait timeout elapses or ctx is cancelled.
func (l *MemoryLocker) Acquire(ctx context.Context, submissionID uint) (func(), error) {
	slot := l.retain(submissionID)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.drop(submissionID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.drop(submissionID, slot)
		return nil, busyError(submissionID, ctx.Err())
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	renewScript   = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// RedisLocker holds a lease key per submission so that several API replicas serialise stage runs.
// While held, the lease is extended every third of its TTL so long provider calls keep it.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	renew  time.Duration
	logger zerolog.Logger
}

// RedisLockerConfig configures lease timings.
type RedisLockerConfig struct {
	Prefix      string
	TTL         time.Duration
	WaitTimeout time.Duration
	RetryEvery  time.Duration
	Logger      zerolog.Logger
}

// NewRedisLocker constructs a Redis backed locker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "supermarks:lock:submission"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 50 * time.Millisecond
	}

	return &RedisLocker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		wait:   cfg.WaitTimeout,
		retry:  cfg.RetryEvery,
		renew:  cfg.TTL / 3,
		logger: cfg.Logger.With().Str("component", "redis_locker").Logger(),
	}
}

func (l *RedisLocker) key(submissionID uint) string {
	return fmt.Sprintf("%s:%d", l.prefix, submissionID)
}

// Acquire polls SET NX until the lease is obtained or the wait timeout elapses.
func (l *RedisLocker) Acquire(ctx context.Context, submissionID uint) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	key := l.key(submissionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire submission lock: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(key, token, stop, done)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err()
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, busyError(submissionID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lease until stop closes or the lease is no longer ours.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.renew)
		renewed, err := l.client.Eval(ctx, renewScript, []string{key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to renew lock lease")
			continue
		}
		if renewed == 0 {
			l.logger.Warn().Str("key", key).Msg("lock lease lost before release")
			return
		}
	}
}

func busyError(submissionID uint, cause error) error {
	return &StageError{
		Err:          ErrSubmissionBusy,
		SubmissionID: submissionID,
		Detail:       fmt.Sprintf("another stage is running: %v", cause),
	}
}
