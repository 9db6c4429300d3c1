package live

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the engine's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so the collector stays optional.
type Metrics struct {
	EventsDecoded  *prometheus.CounterVec
	DecodeErrors   prometheus.Counter
	BatchesFlushed prometheus.Counter
	BatchSize      prometheus.Histogram
	Reconnects     prometheus.Counter
	Invalidations  *prometheus.CounterVec
	PingsAnswered  prometheus.Counter
}

// NewMetrics registers the engine metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		EventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simdeck_events_decoded_total",
			Help: "Decoded feed events, labeled by kind.",
		}, []string{"kind"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simdeck_decode_errors_total",
			Help: "Frames dropped because they failed to decode.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simdeck_batches_flushed_total",
			Help: "Coalescing windows flushed into the derived state.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simdeck_batch_size_events",
			Help:    "Events folded per flushed batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simdeck_reconnect_attempts_total",
			Help: "Scheduled reconnect attempts after unclean closes.",
		}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simdeck_cache_invalidations_total",
			Help: "Cache scopes invalidated after batch application, labeled by resource.",
		}, []string{"resource"}),
		PingsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simdeck_pings_answered_total",
			Help: "Server pings answered with a pong control frame.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.EventsDecoded, m.DecodeErrors, m.BatchesFlushed, m.BatchSize,
		m.Reconnects, m.Invalidations, m.PingsAnswered,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) eventDecoded(kind string) {
	if m != nil {
		m.EventsDecoded.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) batchFlushed(size int) {
	if m != nil {
		m.BatchesFlushed.Inc()
		m.BatchSize.Observe(float64(size))
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) invalidated(resource string) {
	if m != nil {
		if resource == "" {
			resource = "summary"
		}
		m.Invalidations.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) pingAnswered() {
	if m != nil {
		m.PingsAnswered.Inc()
	}
}
