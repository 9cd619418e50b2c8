package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	perf := PerfSample{
		StepDuration: 3 * time.Millisecond,
		Phases:       map[string]time.Duration{PhaseInfection: 2 * time.Millisecond},
	}
	m.Observe(TimestepStats{Candidates: 4, Mortality: 120, Resprouts: 1, InfectedFraction: 0.25, LiveTimers: 3}, perf)
	m.Observe(TimestepStats{Candidates: 2, Mortality: 30, InfectedFraction: 0.5}, perf)

	if got := testutil.ToFloat64(m.timesteps); got != 2 {
		t.Errorf("timesteps = %v", got)
	}
	if got := testutil.ToFloat64(m.candidates); got != 6 {
		t.Errorf("candidates = %v", got)
	}
	if got := testutil.ToFloat64(m.mortality); got != 150 {
		t.Errorf("mortality = %v", got)
	}
	if got := testutil.ToFloat64(m.infected); got != 0.5 {
		t.Errorf("infected gauge = %v", got)
	}
	if got := testutil.CollectAndCount(m.phase); got != 1 {
		t.Errorf("phase series = %d", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.Observe(TimestepStats{Mortality: 5}, PerfSample{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "blight_mortality_biomass_total 5") {
		t.Errorf("exposition missing mortality counter:\n%s", rec.Body.String())
	}
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.Observe(TimestepStats{}, PerfSample{})
}

func TestMetricsServe(t *testing.T) {
	m := NewMetrics()
	m.Observe(TimestepStats{Mortality: 7}, PerfSample{})

	srv, err := m.Serve("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "blight_mortality_biomass_total 7") {
		t.Errorf("served exposition missing mortality counter:\n%s", body)
	}
}

func TestMetricsServeBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	tests := []struct {
		name string
		addr string
	}{
		{"port in use", ln.Addr().String()},
		{"malformed", "not-an-address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetrics().Serve(tt.addr, nil)
			if err == nil {
				srv.Shutdown(context.Background())
				t.Fatalf("Serve(%q) succeeded, want bind error", tt.addr)
			}
		})
	}
}
