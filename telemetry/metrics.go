package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "blight"

// Metrics exports per-timestep simulation counters to Prometheus. A nil
// *Metrics ignores all calls.
type Metrics struct {
	registry *prometheus.Registry

	timesteps   prometheus.Counter
	candidates  prometheus.Counter
	mortality   prometheus.Counter
	resprouts   prometheus.Counter
	infected    prometheus.Gauge
	susceptible prometheus.Gauge
	liveTimers  prometheus.Gauge
	stepSeconds prometheus.Histogram
	phase       *prometheus.HistogramVec
}

// NewMetrics creates a dedicated registry with all simulation collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		timesteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "timesteps_total",
			Help: "Timesteps advanced.",
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "transition_candidates_total",
			Help: "Sites selected for biomass transition.",
		}),
		mortality: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "mortality_biomass_total",
			Help: "Biomass sent to death.",
		}),
		resprouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "resprouts_total",
			Help: "Cohorts spawned by resprout timers.",
		}),
		infected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "infected_site_fraction",
			Help: "Fraction of active sites observed infected.",
		}),
		susceptible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "susceptible_mean",
			Help: "Mean susceptible probability over active sites.",
		}),
		liveTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "resprout_timers",
			Help: "Live resprout timers.",
		}),
		stepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "timestep_duration_seconds",
			Help:    "Wall time of one Advance call.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		phase: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "phase_duration_seconds",
			Help:    "Wall time per timestep phase.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"phase"}),
	}
	m.registry.MustRegister(
		m.timesteps, m.candidates, m.mortality, m.resprouts,
		m.infected, m.susceptible, m.liveTimers, m.stepSeconds, m.phase,
	)
	return m
}

// Observe records one completed timestep.
func (m *Metrics) Observe(s TimestepStats, perf PerfSample) {
	if m == nil {
		return
	}
	m.timesteps.Inc()
	m.candidates.Add(float64(s.Candidates))
	m.mortality.Add(float64(s.Mortality))
	m.resprouts.Add(float64(s.Resprouts))
	m.infected.Set(s.InfectedFraction)
	m.susceptible.Set(s.SusceptibleMean)
	m.liveTimers.Set(float64(s.LiveTimers))
	m.stepSeconds.Observe(perf.StepDuration.Seconds())
	for name, d := range perf.Phases {
		m.phase.WithLabelValues(name).Observe(d.Seconds())
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve binds addr and serves /metrics on it in the background. Bind
// failures are returned; later serve errors are logged. The returned
// server carries the bound address and is shut down by the caller.
func (m *Metrics) Serve(addr string, logger *slog.Logger) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", srv.Addr, "err", err)
		}
	}()
	return srv, nil
}
