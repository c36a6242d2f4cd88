package observability

import (
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	transfers         *prometheus.CounterVec
	cardStatusChanges *prometheus.CounterVec
	blockRequests     *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	cardsExpired      prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankcards_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_transfers_total",
				Help: "Card-to-card transfers by result.",
			},
			[]string{"result"},
		),
		cardStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_card_status_changes_total",
				Help: "Card lifecycle transitions by target status.",
			},
			[]string{"status"},
		),
		blockRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_block_requests_total",
				Help: "User block requests by result.",
			},
			[]string{"result"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_store_errors_total",
				Help: "Unexpected datastore errors.",
			},
			[]string{"store"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankcards_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		cardsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bankcards_cards_expired_total",
				Help: "Cards moved to EXPIRED by the expiry job.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransfer counts a transfer outcome; result is "completed" or an error kind.
func (m *Metrics) IncrTransfer(result string) {
	m.transfers.WithLabelValues(result).Inc()
}

// IncrCardStatusChange counts a lifecycle transition.
func (m *Metrics) IncrCardStatusChange(status domain.CardStatus) {
	m.cardStatusChanges.WithLabelValues(string(status)).Inc()
}

// IncrBlockRequest counts a block request outcome.
func (m *Metrics) IncrBlockRequest(result string) {
	m.blockRequests.WithLabelValues(result).Inc()
}

// IncrStoreError counts an unexpected datastore failure.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// AddCardsExpired adds n expired cards.
func (m *Metrics) AddCardsExpired(n int64) {
	m.cardsExpired.Add(float64(n))
}

// Snapshot returns the counters behind GET /api/admin/stats.
func (m *Metrics) Snapshot() *domain.OperationStats {
	completed := getCounterValue(m.transfers.WithLabelValues("completed"))
	var rejected float64
	for _, kind := range []domain.ErrorKind{
		domain.KindNotFound, domain.KindConflict, domain.KindInvalidInput,
		domain.KindNegativeBalance, domain.KindInternal, domain.KindUnavailable, domain.KindTimeout,
	} {
		rejected += getCounterValue(m.transfers.WithLabelValues(kind.String()))
	}

	hits := getCounterValue(m.cacheHits.WithLabelValues("principal"))
	misses := getCounterValue(m.cacheMisses.WithLabelValues("principal"))

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}
	rejectRate := float64(0)
	if completed+rejected > 0 {
		rejectRate = rejected / (completed + rejected)
	}

	storeErrors := getCounterValue(m.storeErrors.WithLabelValues("postgres")) +
		getCounterValue(m.storeErrors.WithLabelValues("memory"))

	return &domain.OperationStats{
		TransfersCompleted: int64(completed),
		TransfersRejected:  int64(rejected),
		BlockRequests:      int64(getCounterValue(m.blockRequests.WithLabelValues("completed"))),
		CardsActivated:     int64(getCounterValue(m.cardStatusChanges.WithLabelValues(string(domain.CardStatusActive)))),
		CardsBlocked:       int64(getCounterValue(m.cardStatusChanges.WithLabelValues(string(domain.CardStatusBlocked)))),
		CardsExpired:       int64(getCounterValue(m.cardsExpired)),
		UserCacheHitRate:   hitRate,
		TransferRejectRate: rejectRate,
		StoreErrors:        int64(storeErrors),
	}
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
