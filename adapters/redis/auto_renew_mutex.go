package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// AutoRenewMutex is a redsync mutex that keeps extending its own expiry
// while held, so a slow critical section does not lose the lock.
type AutoRenewMutex struct {
	*redsync.Mutex
	cancel   context.CancelFunc
	renewing bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	options  autoRenewMutexOptions
}

type autoRenewMutexOptions struct {
	renewInterval time.Duration
	retryDelay    time.Duration
	expiry        time.Duration
	lockTimeout   time.Duration
	skipLockError bool
}

type AutoRenewMutexOption func(*autoRenewMutexOptions)

// WithAutoRenewMutexRenewInterval sets the auto renew interval.
func WithAutoRenewMutexRenewInterval(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.renewInterval = d
	}
}

// WithAutoRenewMutexRetryDelay sets the delay between lock attempts.
func WithAutoRenewMutexRetryDelay(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.retryDelay = d
	}
}

// WithAutoRenewMutexExpiry sets the lock expiry.
func WithAutoRenewMutexExpiry(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.expiry = d
	}
}

// WithAutoRenewMutexLockTimeout bounds how long Lock waits for a held
// lock. Zero waits until the caller's context ends. The timeout covers
// acquisition only, never the time the lock is held.
func WithAutoRenewMutexLockTimeout(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.lockTimeout = d
	}
}

// WithAutoRenewMutexSkipLockError makes Lock keep retrying through
// redis communication errors instead of returning them.
func WithAutoRenewMutexSkipLockError(skip bool) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.skipLockError = skip
	}
}

func NewAutoRenewMutex(client *redis.Client, key string, opts ...AutoRenewMutexOption) IAutoRenewMutex {
	options := autoRenewMutexOptions{
		expiry:        8 * time.Second,
		retryDelay:    500 * time.Millisecond,
		renewInterval: 0,
		skipLockError: false,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// Renew at a third of the expiry unless told otherwise.
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	pool := goredis.NewPool(client)
	rs := redsync.New(pool)

	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
		redsync.WithRetryDelay(options.retryDelay),
	)

	return &AutoRenewMutex{
		Mutex:   mutex,
		options: options,
	}
}

// Lock blocks until the lock is held, then starts the renewal loop. The
// returned context is canceled when the lock is lost or released, so
// work guarded by the lock can watch it.
func (m *AutoRenewMutex) Lock(ctx context.Context) (context.Context, error) {
	waitCtx := ctx
	if m.options.lockTimeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeout(ctx, m.options.lockTimeout)
		defer cancelWait()
	}

	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		case <-timer.C:
			err := m.Mutex.LockContext(waitCtx)
			if err == nil {
				// The lock context follows the caller's context, not the
				// acquisition deadline.
				lockCtx, cancel := context.WithCancel(ctx)
				m.cancel = cancel
				m.startAutoRenew(lockCtx)
				return lockCtx, nil
			}
			var commErr *redsync.RedisError
			if !m.options.skipLockError && errors.As(err, &commErr) {
				return nil, fmt.Errorf("failed to acquire lock: %w", err)
			}
			timer.Reset(m.options.retryDelay)
		}
	}
}

// TryLock makes a single attempt. It reports false without error when
// another holder already owns the lock, which is how the lifecycle
// sweeper skips a tick another instance is handling.
func (m *AutoRenewMutex) TryLock(ctx context.Context) (bool, error) {
	err := m.Mutex.TryLockContext(ctx)
	if err == nil {
		lockCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.startAutoRenew(lockCtx)
		return true, nil
	}

	var takenErr *redsync.ErrTaken
	if errors.As(err, &takenErr) {
		return false, nil
	}
	var nodeErr *redsync.ErrNodeTaken
	if errors.As(err, &nodeErr) {
		return false, nil
	}
	return false, fmt.Errorf("failed to acquire lock: %w", err)
}

// Unlock stops the renewal loop and releases the lock.
func (m *AutoRenewMutex) Unlock(ctx context.Context) (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.UnlockContext(ctx)
}

// Valid reports whether the lock is still held and renewing.
func (m *AutoRenewMutex) Valid() bool {
	return time.Now().Before(m.Mutex.Until()) && m.renewing
}

func (m *AutoRenewMutex) startAutoRenew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renewing {
		return
	}

	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := m.Mutex.Extend()
				if err != nil || !success {
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *AutoRenewMutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}

	m.renewing = false
	if m.cancel != nil {
		m.cancel()
	}
}
