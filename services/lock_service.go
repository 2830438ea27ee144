package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ticket-gate/internal/status"
	"ticket-gate/monitoring"
)

// releaseLockScript deletes the lock only while we still own it. Releasing a
// lock whose lease already lapsed (or that another owner took over) is a
// no-op, never an error.
const releaseLockScript = `if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`

// LockHandle is proof of ownership for one critical section. The token makes
// release safe regardless of which goroutine or process performs it.
type LockHandle struct {
	Name          string
	Token         string
	LeaseDeadline time.Time
}

var errLockHeld = errors.New("lock: held by another owner")

// LockService is a named, lease-bounded mutual exclusion primitive over
// Redis. The lease caps how long a crashed holder can block everyone else.
type LockService struct {
	Redis         *redis.Client
	retryInterval time.Duration

	monitor  *monitoring.Monitor
	newToken func() string
}

func NewLockService(redisClient *redis.Client, retryInterval time.Duration, monitor *monitoring.Monitor) *LockService {
	return &LockService{
		Redis:         redisClient,
		retryInterval: retryInterval,
		monitor:       monitor,
		newToken:      uuid.NewString,
	}
}

// Acquire blocks up to waitTimeout trying to take ownership of name. The
// returned handle is valid until leaseTimeout elapses or Release is called.
func (s *LockService) Acquire(ctx context.Context, name string, waitTimeout, leaseTimeout time.Duration) (*LockHandle, error) {
	token := s.newToken()
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	attempt := func() error {
		ok, err := s.Redis.SetNX(waitCtx, name, token, leaseTimeout).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(s.retryInterval), waitCtx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, errLockHeld) || waitCtx.Err() != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, status.ErrLockTimeout)
		}
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}

	s.monitor.TrackLockWait(name, time.Since(start))
	return &LockHandle{
		Name:          name,
		Token:         token,
		LeaseDeadline: time.Now().Add(leaseTimeout),
	}, nil
}

// Release gives the lock back. Idempotent: a handle that no longer owns the
// lock releases nothing and reports no error.
func (s *LockService) Release(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return nil
	}
	if err := s.Redis.Eval(ctx, releaseLockScript, []string{handle.Name}, handle.Token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", handle.Name, err)
	}
	return nil
}

// WithLock runs fn inside the named critical section, releasing on every exit
// path including panics. Work done inside must carry its own timeouts so a
// slow dependency cannot outlive the lease.
func (s *LockService) WithLock(ctx context.Context, name string, waitTimeout, leaseTimeout time.Duration, fn func(ctx context.Context) error) error {
	handle, err := s.Acquire(ctx, name, waitTimeout, leaseTimeout)
	if err != nil {
		return err
	}
	defer func() {
		// The caller's ctx may already be cancelled by the time fn returns;
		// the release must still reach Redis or the lock stays held for the
		// remainder of the lease.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Release(releaseCtx, handle); err != nil {
			log.Printf("Error releasing lock %s: %v", name, err)
		}
	}()

	return fn(ctx)
}
