package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking state machine transitions",
		},
		[]string{"from", "to"},
	)

	paymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway success callbacks by outcome",
		},
		[]string{"outcome"},
	)

	oversellFlags = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oversell_flags_total",
			Help: "Bookings flagged for manual reconciliation after an inventory commit race",
		},
	)

	inventoryHolds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_holds_quantity",
			Help: "Soft-held quantity per ticket",
		},
		[]string{"ticket_id"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectHoldMetrics(ctx)
	}
}

func (m *Monitor) collectHoldMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "inventory:hold:*").Result()
	for _, key := range keys {
		ticketID := key[len("inventory:hold:"):]
		held, _ := m.redis.Get(ctx, key).Int64()
		inventoryHolds.WithLabelValues(ticketID).Set(float64(held))
	}
}

// TrackTransition records a booking status change.
func (m *Monitor) TrackTransition(from, to string) {
	bookingTransitions.WithLabelValues(from, to).Inc()
}

// TrackCallback records the outcome of a gateway success callback.
func (m *Monitor) TrackCallback(outcome string) {
	paymentCallbacks.WithLabelValues(outcome).Inc()
}

// TrackOversell records a booking flagged for manual reconciliation.
func (m *Monitor) TrackOversell() {
	oversellFlags.Inc()
}

// TrackGatewayRequest records the duration of a gateway call.
func (m *Monitor) TrackGatewayRequest(operation string, duration time.Duration) {
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
