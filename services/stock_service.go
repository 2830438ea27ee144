package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-gate/internal/status"
	"ticket-gate/monitoring"
	"ticket-gate/store"
)

// StockService keeps a cache-coherent availability counter per ticket type.
// The durable row is ground truth; the Redis value accelerates reads and
// absorbs optimistic reservations. Every mutation runs under the per-type
// distributed lock because a read-then-write on the cache is not atomic
// across processes.
type StockService struct {
	Redis   *redis.Client
	Locks   *LockService
	Tickets store.TicketStore

	CacheTTL  time.Duration
	LockWait  time.Duration
	LockLease time.Duration
	monitor   *monitoring.Monitor
}

func NewStockService(redisClient *redis.Client, locks *LockService, tickets store.TicketStore, cacheTTL, lockWait, lockLease time.Duration, monitor *monitoring.Monitor) *StockService {
	return &StockService{
		Redis:     redisClient,
		Locks:     locks,
		Tickets:   tickets,
		CacheTTL:  cacheTTL,
		LockWait:  lockWait,
		LockLease: lockLease,
		monitor:   monitor,
	}
}

func stockKey(ticketTypeID string) string {
	return fmt.Sprintf("stock:ticket_type:%s", ticketTypeID)
}

func stockLockName(ticketTypeID string) string {
	return fmt.Sprintf("lock:stock:%s", ticketTypeID)
}

// Initialize seeds the cache from the durable value. Idempotent: an existing
// cached value is left alone.
func (s *StockService) Initialize(ctx context.Context, ticketTypeID string) error {
	key := stockKey(ticketTypeID)

	exists, err := s.Redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check stock cache: %w", err)
	}
	if exists > 0 {
		return nil
	}

	ticketType, err := s.Tickets.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return err
	}

	if err := s.Redis.Set(ctx, key, ticketType.AvailableQuantity, s.CacheTTL).Err(); err != nil {
		return fmt.Errorf("seed stock cache: %w", err)
	}

	log.Printf("Stock initialized: ticketTypeId=%s, available=%d", ticketTypeID, ticketType.AvailableQuantity)
	return nil
}

// CurrentAvailable returns the cached availability, backfilling from the
// durable value on a miss. Never blocks on the lock; may lag the durable
// truth until the next commit or reconcile.
func (s *StockService) CurrentAvailable(ctx context.Context, ticketTypeID string) (int, error) {
	key := stockKey(ticketTypeID)

	cached, err := s.Redis.Get(ctx, key).Result()
	if err == nil {
		available, convErr := strconv.Atoi(cached)
		if convErr != nil {
			return 0, fmt.Errorf("corrupt stock cache for %s: %w", ticketTypeID, convErr)
		}
		return available, nil
	}
	if err != redis.Nil {
		return 0, fmt.Errorf("read stock cache: %w", err)
	}

	ticketType, err := s.Tickets.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}

	if err := s.Redis.Set(ctx, key, ticketType.AvailableQuantity, s.CacheTTL).Err(); err != nil {
		return 0, fmt.Errorf("backfill stock cache: %w", err)
	}

	return ticketType.AvailableQuantity, nil
}

// TryReserve optimistically takes count units off the cached counter, ahead
// of any durable commitment. Fails with ErrInsufficientStock (state
// untouched) when fewer than count units remain.
func (s *StockService) TryReserve(ctx context.Context, ticketTypeID string, count int) error {
	if count <= 0 {
		return fmt.Errorf("reserve count must be positive, got %d", count)
	}

	return s.Locks.WithLock(ctx, stockLockName(ticketTypeID), s.LockWait, s.LockLease, func(ctx context.Context) error {
		available, err := s.CurrentAvailable(ctx, ticketTypeID)
		if err != nil {
			return err
		}

		if available < count {
			s.monitor.TrackStockOperation("reserve", ticketTypeID, "insufficient")
			return fmt.Errorf("ticket type %s has %d left, need %d: %w",
				ticketTypeID, available, count, status.ErrInsufficientStock)
		}

		newAvailable := available - count
		if err := s.Redis.Set(ctx, stockKey(ticketTypeID), newAvailable, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("decrement stock cache: %w", err)
		}

		s.monitor.TrackStockOperation("reserve", ticketTypeID, "success")
		log.Printf("Stock reserved: ticketTypeId=%s, before=%d, after=%d", ticketTypeID, available, newAvailable)
		return nil
	})
}

// Commit durably decrements availability - the point of no return for a sale -
// then re-synchronizes the cache to the post-decrement durable value.
// Persistence failures propagate so the caller can compensate.
func (s *StockService) Commit(ctx context.Context, ticketTypeID string, count int) error {
	if count <= 0 {
		return fmt.Errorf("commit count must be positive, got %d", count)
	}

	return s.Locks.WithLock(ctx, stockLockName(ticketTypeID), s.LockWait, s.LockLease, func(ctx context.Context) error {
		available, err := s.Tickets.DecreaseAvailable(ctx, ticketTypeID, count)
		if err != nil {
			return err
		}

		if err := s.Redis.Set(ctx, stockKey(ticketTypeID), available, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("sync stock cache after commit: %w", err)
		}

		s.monitor.TrackStockOperation("commit", ticketTypeID, "success")
		log.Printf("Stock committed: ticketTypeId=%s, available=%d", ticketTypeID, available)
		return nil
	})
}

// Restore returns count units after a cancelled or expired reservation. The
// only operation allowed to increase availability; the durable increment is
// clamped at total capacity and the cache follows the durable value.
func (s *StockService) Restore(ctx context.Context, ticketTypeID string, count int) error {
	if count <= 0 {
		return fmt.Errorf("restore count must be positive, got %d", count)
	}

	return s.Locks.WithLock(ctx, stockLockName(ticketTypeID), s.LockWait, s.LockLease, func(ctx context.Context) error {
		available, err := s.Tickets.IncreaseAvailable(ctx, ticketTypeID, count)
		if err != nil {
			return err
		}

		if err := s.Redis.Set(ctx, stockKey(ticketTypeID), available, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("sync stock cache after restore: %w", err)
		}

		s.monitor.TrackStockOperation("restore", ticketTypeID, "success")
		log.Printf("Stock restored: ticketTypeId=%s, available=%d", ticketTypeID, available)
		return nil
	})
}

// Reconcile overwrites the cached value with the durable one, healing any
// drift between the optimistic cache and the ground truth.
func (s *StockService) Reconcile(ctx context.Context, ticketTypeID string) error {
	return s.Locks.WithLock(ctx, stockLockName(ticketTypeID), s.LockWait, s.LockLease, func(ctx context.Context) error {
		ticketType, err := s.Tickets.GetTicketType(ctx, ticketTypeID)
		if err != nil {
			return err
		}

		if err := s.Redis.Set(ctx, stockKey(ticketTypeID), ticketType.AvailableQuantity, s.CacheTTL).Err(); err != nil {
			return fmt.Errorf("reconcile stock cache: %w", err)
		}

		log.Printf("Stock reconciled: ticketTypeId=%s, available=%d", ticketTypeID, ticketType.AvailableQuantity)
		return nil
	})
}
