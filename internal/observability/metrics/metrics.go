package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "spadesk"

// AvailabilityMetrics counts and times slot and date queries.
type AvailabilityMetrics struct {
	queriesTotal *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
}

func NewAvailabilityMetrics(reg prometheus.Registerer) *AvailabilityMetrics {
	m := &AvailabilityMetrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "queries_total",
			Help:      "Availability queries by kind and outcome",
		}, []string{"kind", "outcome"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "query_duration_seconds",
			Help:      "Latency of availability queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.queriesTotal, m.queryLatency)
	return m
}

func (m *AvailabilityMetrics) ObserveQuery(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(kind, outcome).Inc()
	m.queryLatency.WithLabelValues(kind).Observe(seconds)
}

// BookingMetrics counts booking writes (create, assign, status changes).
type BookingMetrics struct {
	writesTotal *prometheus.CounterVec
	rateLimited prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "writes_total",
			Help:      "Booking writes by action and outcome",
		}, []string{"action", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "rate_limited_total",
			Help:      "Public booking requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writesTotal, m.rateLimited)
	return m
}

func (m *BookingMetrics) ObserveBooking(action, outcome string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(action, outcome).Inc()
}

func (m *BookingMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// HTTPMetrics is fed by the request middleware. Route is the chi pattern, not the raw path.
type HTTPMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency)
	return m
}

func (m *HTTPMetrics) ObserveRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, status).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(seconds)
}
