package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 模拟运行指标
type Registry struct {
	registry *prometheus.Registry

	TicksTotal          prometheus.Counter
	TickDuration        prometheus.Histogram
	ReplansTotal        *prometheus.CounterVec
	PathSwitchesTotal   *prometheus.CounterVec
	HandOffsTotal       prometheus.Counter
	CandidatePaths      prometheus.Histogram
	PersistenceFailures *prometheus.CounterVec
	ActiveAgents        prometheus.Gauge
	MaxRisk             prometheus.Gauge
	RiskFramesTotal     *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.TicksTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "evacuation_ticks_total",
		Help: "Total number of evaluated ticks",
	})
	r.TickDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "evacuation_tick_duration_seconds",
		Help:    "Duration of one evaluated tick in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	r.ReplansTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evacuation_replans_total",
		Help: "Route decisions by awareness and outcome",
	}, []string{"awareness", "outcome"}) // keep, switch, wait, error
	r.PathSwitchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evacuation_path_switches_total",
		Help: "Journeys switched by algorithm",
	}, []string{"algorithm"})
	r.HandOffsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "evacuation_handoffs_total",
		Help: "Total number of floor hand-offs",
	})
	r.CandidatePaths = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "evacuation_candidate_paths",
		Help:    "Number of candidate paths per replan",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	r.PersistenceFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evacuation_persistence_failures_total",
		Help: "Persistence failures by table",
	}, []string{"table"})
	r.ActiveAgents = factory.NewGauge(prometheus.GaugeOpts{
		Name: "evacuation_active_agents",
		Help: "Agents still in the simulation",
	})
	r.MaxRisk = factory.NewGauge(prometheus.GaugeOpts{
		Name: "evacuation_max_risk",
		Help: "Highest node risk of the latest snapshot",
	})
	r.RiskFramesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evacuation_risk_frames_total",
		Help: "Risk frames by result",
	}, []string{"result"}) // emitted, failed
	return r
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// /metrics
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) RecordTick(duration time.Duration, agents int, maxRisk float64) {
	r.TicksTotal.Inc()
	r.TickDuration.Observe(duration.Seconds())
	r.ActiveAgents.Set(float64(agents))
	r.MaxRisk.Set(maxRisk)
}

func (r *Registry) RecordReplan(awareness, outcome string) {
	r.ReplansTotal.WithLabelValues(awareness, outcome).Inc()
}

func (r *Registry) RecordRiskFrames(emitted, failed int) {
	r.RiskFramesTotal.WithLabelValues("emitted").Add(float64(emitted))
	r.RiskFramesTotal.WithLabelValues("failed").Add(float64(failed))
}
