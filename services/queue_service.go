package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-gate/config"
	"ticket-gate/internal/status"
	"ticket-gate/models"
	"ticket-gate/monitoring"
	"ticket-gate/store"
)

// enqueueScript atomically assigns the next enqueue score and inserts the
// member, or returns the existing rank when the member is already waiting.
// The score comes from a per-event counter so two concurrent enqueues can
// never compare equal and rank always matches arrival order.
const enqueueScript = `local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
if rank ~= false then
	return {rank, 0}
end
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {redis.call('ZRANK', KEYS[1], ARGV[1]), seq}`

// Each waiting position is assumed to take this long to clear. Deliberately
// naive: the estimate ignores measured throughput.
const estimatedSecondsPerPosition = 30

// QueueService owns the FIFO waiting room and the bounded active set for
// every event. Ordering lives in a Redis ZSET, active membership in a Redis
// SET, and the durable QueueEntry records trail behind for audit and reaping.
type QueueService struct {
	Redis    *redis.Client
	Locks    *LockService
	Events   store.EventStore
	Entries  store.QueueEntryStore
	Notifier Notifier
	Config   *config.Config

	monitor *monitoring.Monitor
}

func NewQueueService(redisClient *redis.Client, locks *LockService, events store.EventStore, entries store.QueueEntryStore, notifier Notifier, cfg *config.Config, monitor *monitoring.Monitor) *QueueService {
	return &QueueService{
		Redis:    redisClient,
		Locks:    locks,
		Events:   events,
		Entries:  entries,
		Notifier: notifier,
		Config:   cfg,
		monitor:  monitor,
	}
}

func queueKey(eventID string) string {
	return fmt.Sprintf("queue:event:%s", eventID)
}

func queueSeqKey(eventID string) string {
	return fmt.Sprintf("queue:seq:%s", eventID)
}

func activeKey(eventID string) string {
	return fmt.Sprintf("queue:active:%s", eventID)
}

func queueLockName(eventID string) string {
	return fmt.Sprintf("lock:queue:%s", eventID)
}

func memberKey(eventID, memberID string) string {
	return fmt.Sprintf("%s:%s", eventID, memberID)
}

func splitMemberKey(key string) (eventID, memberID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Enqueue adds the member to the event's waiting room and returns the 1-based
// position. Idempotent: a member already waiting gets their current position
// back, no duplicate entry. Fails with ErrQueueInactive when the event's
// queue flag is off.
func (s *QueueService) Enqueue(ctx context.Context, eventID, memberID string) (*models.QueuePosition, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.QueueActive {
		return nil, fmt.Errorf("event %s: %w", eventID, status.ErrQueueInactive)
	}

	now := time.Now()
	res, err := s.Redis.Eval(ctx, enqueueScript,
		[]string{queueKey(eventID), queueSeqKey(eventID)},
		memberKey(eventID, memberID),
		int(s.Config.QueueEntryTTL.Seconds()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, fmt.Errorf("enqueue: unexpected script reply %v", res)
	}
	rank, _ := vals[0].(int64)
	score, _ := vals[1].(int64)

	if score > 0 {
		entry := &models.QueueEntry{
			EventID:      eventID,
			MemberID:     memberID,
			EnqueueScore: score,
			Status:       models.EntryWaiting,
			JoinedAt:     now,
		}
		if err := s.Entries.CreateWaiting(ctx, entry); err != nil {
			// Without a durable record the ZSET member is a phantom the reaper
			// would only evict as an orphan. Undo the insert so the member can
			// retry cleanly.
			if remErr := s.Redis.ZRem(ctx, queueKey(eventID), memberKey(eventID, memberID)).Err(); remErr != nil {
				log.Printf("Error undoing enqueue: eventId=%s, memberId=%s, error=%v", eventID, memberID, remErr)
			}
			return nil, err
		}
		s.monitor.TrackQueueOperation("enqueue", eventID, "success")
		log.Printf("Member enqueued: eventId=%s, memberId=%s, position=%d", eventID, memberID, rank+1)
	}

	return s.position(eventID, memberID, int(rank)+1, now), nil
}

// PositionOf returns the member's current 1-based rank without taking a lock.
func (s *QueueService) PositionOf(ctx context.Context, eventID, memberID string) (*models.QueuePosition, error) {
	rank, err := s.Redis.ZRank(ctx, queueKey(eventID), memberKey(eventID, memberID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("event %s, member %s: %w", eventID, memberID, status.ErrNotInQueue)
	}
	if err != nil {
		return nil, fmt.Errorf("queue rank: %w", err)
	}

	return s.position(eventID, memberID, int(rank)+1, time.Now()), nil
}

func (s *QueueService) position(eventID, memberID string, position int, now time.Time) *models.QueuePosition {
	return &models.QueuePosition{
		EventID:              eventID,
		MemberID:             memberID,
		Position:             position,
		EstimatedWaitSeconds: int64(position) * estimatedSecondsPerPosition,
		Timestamp:            now,
	}
}

// QueueStatus is a read-only snapshot. It never takes the lock, so the
// active count may run slightly stale until the next reaper sweep.
func (s *QueueService) QueueStatus(ctx context.Context, eventID string) (*models.QueueStatusInfo, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	totalWaiting, err := s.Redis.ZCard(ctx, queueKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("waiting count: %w", err)
	}

	activeUsers, err := s.Redis.SCard(ctx, activeKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("active count: %w", err)
	}

	return &models.QueueStatusInfo{
		EventID:        eventID,
		TotalWaiting:   totalWaiting,
		ActiveUsers:    activeUsers,
		MaxActiveUsers: s.maxActiveUsers(event),
		QueueActive:    event.QueueActive,
		Timestamp:      time.Now(),
	}, nil
}

func (s *QueueService) maxActiveUsers(event *models.Event) int {
	if event.MaxActiveUsers > 0 {
		return event.MaxActiveUsers
	}
	return s.Config.MaxActiveUsers
}

// AdmitNext promotes up to count members from the front of the waiting room
// into the active set. The whole computation runs under the event's lock so
// two concurrent admission triggers cannot jointly overshoot capacity.
// Returns the number actually admitted; 0 with no error when the active set
// is full. One member's failure is logged and does not stop the rest.
func (s *QueueService) AdmitNext(ctx context.Context, eventID string, count int) (int, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}

	admitted := 0
	err = s.Locks.WithLock(ctx, queueLockName(eventID), s.Config.LockWaitTimeout, s.Config.LockLeaseTimeout, func(ctx context.Context) error {
		activeUsers, err := s.Redis.SCard(ctx, activeKey(eventID)).Result()
		if err != nil {
			return fmt.Errorf("active count: %w", err)
		}

		available := s.maxActiveUsers(event) - int(activeUsers)
		if available <= 0 {
			log.Printf("No active slots left: eventId=%s (%d/%d)", eventID, activeUsers, s.maxActiveUsers(event))
			return nil
		}

		toAdmit := count
		if available < toAdmit {
			toAdmit = available
		}

		next, err := s.Redis.ZRange(ctx, queueKey(eventID), 0, int64(toAdmit-1)).Result()
		if err != nil {
			return fmt.Errorf("front of queue: %w", err)
		}

		for _, key := range next {
			if err := s.admitMember(ctx, event, key); err != nil {
				log.Printf("Error admitting member: key=%s, error=%v", key, err)
				s.monitor.TrackQueueOperation("admit", eventID, "failure")
				continue
			}
			admitted++
			s.monitor.TrackQueueOperation("admit", eventID, "success")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if admitted > 0 {
		log.Printf("Admitted %d members: eventId=%s", admitted, eventID)
	}
	return admitted, nil
}

// admitMember moves one member from waiting to active and marks the durable
// record NOTIFIED with the admission TTL. Caller holds the event lock.
func (s *QueueService) admitMember(ctx context.Context, event *models.Event, key string) error {
	eventID, memberID, ok := splitMemberKey(key)
	if !ok {
		return fmt.Errorf("malformed queue member %q", key)
	}

	removed, err := s.Redis.ZRem(ctx, queueKey(eventID), key).Result()
	if err != nil {
		return fmt.Errorf("remove from waiting: %w", err)
	}
	if removed == 0 {
		// Another process admitted this member between ZRANGE and here.
		return fmt.Errorf("member %s: %w", memberID, status.ErrAlreadyAdmitted)
	}

	if err := s.Redis.SAdd(ctx, activeKey(eventID), key).Err(); err != nil {
		return fmt.Errorf("add to active set: %w", err)
	}
	if err := s.Redis.Expire(ctx, activeKey(eventID), s.Config.QueueEntryTTL).Err(); err != nil {
		return fmt.Errorf("refresh active set ttl: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.Config.QueueEntryTTL)
	if err := s.Entries.MarkNotified(ctx, eventID, memberID, now, expiresAt); err != nil {
		return err
	}

	// Best effort: a failed notification never rolls back the admission.
	notification := models.Notification{
		Type:    "QUEUE_READY",
		Title:   fmt.Sprintf("%s admission", event.Name),
		Content: "It's your turn. Please enter within 30 minutes.",
		Link:    fmt.Sprintf("/events/%s", eventID),
	}
	if err := s.Notifier.Notify(ctx, memberID, notification); err != nil {
		log.Printf("Error notifying admitted member: eventId=%s, memberId=%s, error=%v", eventID, memberID, err)
	}

	return nil
}

// Leave removes a member who gave up waiting. Only waiting members can leave;
// an admitted member's slot is released through CompleteEntry or expiry.
func (s *QueueService) Leave(ctx context.Context, eventID, memberID string) error {
	removed, err := s.Redis.ZRem(ctx, queueKey(eventID), memberKey(eventID, memberID)).Result()
	if err != nil {
		return fmt.Errorf("leave queue: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("event %s, member %s: %w", eventID, memberID, status.ErrNotInQueue)
	}

	if err := s.Entries.MarkExpired(ctx, eventID, memberID); err != nil {
		log.Printf("Error expiring entry on leave: eventId=%s, memberId=%s, error=%v", eventID, memberID, err)
	}

	s.monitor.TrackQueueOperation("leave", eventID, "success")
	log.Printf("Member left queue: eventId=%s, memberId=%s", eventID, memberID)
	return nil
}

// CompleteEntry finishes a member's trip through the waiting room after a
// successful purchase: active slot freed, durable record ENTERED.
func (s *QueueService) CompleteEntry(ctx context.Context, eventID, memberID string) error {
	if err := s.Redis.SRem(ctx, activeKey(eventID), memberKey(eventID, memberID)).Err(); err != nil {
		return fmt.Errorf("remove from active set: %w", err)
	}
	if err := s.Entries.MarkEntered(ctx, eventID, memberID, time.Now()); err != nil {
		return err
	}
	s.monitor.TrackQueueOperation("complete", eventID, "success")
	return nil
}

// ToggleQueue flips whether new enqueues are accepted. Existing entries are
// untouched; the reaper handles their eventual expiry.
func (s *QueueService) ToggleQueue(ctx context.Context, eventID string, active bool) error {
	if err := s.Events.SetQueueActive(ctx, eventID, active); err != nil {
		return err
	}
	log.Printf("Queue toggled: eventId=%s, active=%v", eventID, active)
	return nil
}

// RestoreQueueState re-triggers admission for every queue-active event after
// a restart, so waiting members are not stranded while traffic is idle.
func (s *QueueService) RestoreQueueState(ctx context.Context) {
	events, err := s.Events.ListQueueActive(ctx)
	if err != nil {
		log.Printf("Error listing queue-active events: %v", err)
		return
	}

	for _, event := range events {
		waiting, err := s.Redis.ZCard(ctx, queueKey(event.ID)).Result()
		if err != nil || waiting == 0 {
			continue
		}
		if _, err := s.AdmitNext(ctx, event.ID, s.Config.AdmitBatchSize); err != nil {
			log.Printf("Error restoring admissions: eventId=%s, error=%v", event.ID, err)
		}
	}
}
