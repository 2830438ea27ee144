package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	waitingMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waiting_members_total",
			Help: "Current waiting room length per event",
		},
		[]string{"event_id"},
	)

	activeMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_members_total",
			Help: "Current number of admitted members per event",
		},
		[]string{"event_id"},
	)

	cachedStock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cached_stock_available",
			Help: "Cached available quantity per ticket type",
		},
		[]string{"ticket_type_id"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "event_id", "status"},
	)

	stockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_operations_total",
			Help: "Total stock ledger operations",
		},
		[]string{"operation", "ticket_type_id", "status"},
	)

	commandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_processed_total",
			Help: "Total commands processed by the worker",
		},
		[]string{"type", "status"},
	)

	reapedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaped_items_total",
			Help: "Total expired items reclaimed by the reaper",
		},
		[]string{"kind"},
	)

	lockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire distributed locks",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"lock"},
	)
)

// Monitor wraps the Prometheus counters behind nil-safe helpers so services
// can be built without metrics (tests pass a nil *Monitor).
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectQueueMetrics(ctx)
		m.collectStockMetrics(ctx)
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	waitingKeys, _ := m.redis.Keys(ctx, "queue:event:*").Result()
	for _, key := range waitingKeys {
		eventID := key[len("queue:event:"):]
		length, _ := m.redis.ZCard(ctx, key).Result()
		waitingMembers.WithLabelValues(eventID).Set(float64(length))
	}

	activeKeys, _ := m.redis.Keys(ctx, "queue:active:*").Result()
	for _, key := range activeKeys {
		eventID := key[len("queue:active:"):]
		length, _ := m.redis.SCard(ctx, key).Result()
		activeMembers.WithLabelValues(eventID).Set(float64(length))
	}
}

func (m *Monitor) collectStockMetrics(ctx context.Context) {
	stockKeys, _ := m.redis.Keys(ctx, "stock:ticket_type:*").Result()
	for _, key := range stockKeys {
		ticketTypeID := key[len("stock:ticket_type:"):]
		raw, err := m.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		available, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		cachedStock.WithLabelValues(ticketTypeID).Set(float64(available))
	}
}

func (m *Monitor) TrackQueueOperation(operation, eventID, status string) {
	if m == nil {
		return
	}
	queueOperations.WithLabelValues(operation, eventID, status).Inc()
}

func (m *Monitor) TrackStockOperation(operation, ticketTypeID, status string) {
	if m == nil {
		return
	}
	stockOperations.WithLabelValues(operation, ticketTypeID, status).Inc()
}

func (m *Monitor) TrackCommand(commandType, status string) {
	if m == nil {
		return
	}
	commandsProcessed.WithLabelValues(commandType, status).Inc()
}

func (m *Monitor) TrackReaped(kind string) {
	if m == nil {
		return
	}
	reapedItems.WithLabelValues(kind).Inc()
}

// TrackLockWait records how long a caller waited for a distributed lock.
func (m *Monitor) TrackLockWait(lock string, duration time.Duration) {
	if m == nil {
		return
	}
	lockWaitDuration.WithLabelValues(lock).Observe(duration.Seconds())
}
