package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums the samples of a gathered counter whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestAvailabilityMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAvailabilityMetrics(reg)
	m.ObserveQuery("slots", "ok", 0.01)
	m.ObserveQuery("slots", "ok", 0.02)
	m.ObserveQuery("dates", "unavailable", 0.5)

	if got := counterValue(t, reg, "spadesk_availability_queries_total", map[string]string{"kind": "slots", "outcome": "ok"}); got != 2 {
		t.Fatalf("slots ok = %v, want 2", got)
	}
	if got := counterValue(t, reg, "spadesk_availability_queries_total", map[string]string{"kind": "dates"}); got != 1 {
		t.Fatalf("dates = %v, want 1", got)
	}
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("create", "ok")
	m.ObserveBooking("create", "error")
	m.ObserveRateLimited()

	if got := counterValue(t, reg, "spadesk_bookings_writes_total", map[string]string{"action": "create"}); got != 2 {
		t.Fatalf("create = %v, want 2", got)
	}
	if got := counterValue(t, reg, "spadesk_bookings_rate_limited_total", nil); got != 1 {
		t.Fatalf("rate limited = %v, want 1", got)
	}
}

func TestHTTPMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest("/api/v1/bookings", "POST", "201", 0.1)

	if got := counterValue(t, reg, "spadesk_http_requests_total", map[string]string{"status": "201"}); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var a *AvailabilityMetrics
	a.ObserveQuery("slots", "ok", 0.1)
	var b *BookingMetrics
	b.ObserveBooking("create", "ok")
	b.ObserveRateLimited()
	var h *HTTPMetrics
	h.ObserveRequest("/", "GET", "200", 0.1)
}
