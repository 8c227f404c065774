package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// poseLabels names the gauge components of the published pose. States longer
// than the label set (higher kinematic orders) report the velocity block too.
var poseLabels = []string{"x", "y", "theta", "vx", "vy", "vtheta"}

// SimCollector bundles Prometheus metrics for the simulation loop and
// provides a /metrics handler.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Cycles         *prometheus.CounterVec
	CycleDurations *prometheus.HistogramVec

	IgnoredTimerEvents prometheus.Counter
	RejectedCommands   prometheus.Counter

	LastMeasurement prometheus.Gauge
	Pose            *prometheus.GaugeVec
}

// NewSimCollector registers simulator Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_cycles_total",
		Help: "Total number of completed simulation cycles, labeled by kind (state or measurement).",
	}, []string{"kind"})
	cycles, err := registerCounterVec(reg, cycles, "sim_cycles_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_cycle_duration_seconds",
		Help:    "Simulation cycle latency in seconds, labeled by kind.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}, []string{"kind"})
	durations, err = registerHistogramVec(reg, durations, "sim_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	ignored, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ignored_timer_events_total",
		Help: "Timer-fired notifications whose identifier matched neither configured timer.",
	}), "sim_ignored_timer_events_total")
	if err != nil {
		return nil, err
	}
	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_rejected_commands_total",
		Help: "Control commands rejected for carrying non-finite values.",
	}), "sim_rejected_commands_total")
	if err != nil {
		return nil, err
	}

	lastMeas, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_last_measurement",
		Help: "Most recently published distance measurement.",
	}), "sim_last_measurement")
	if err != nil {
		return nil, err
	}

	pose := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_pose",
		Help: "Most recently published pose, labeled by state component.",
	}, []string{"component"})
	pose, err = registerGaugeVec(reg, pose, "sim_pose")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		Cycles:             cycles,
		CycleDurations:     durations,
		IgnoredTimerEvents: ignored,
		RejectedCommands:   rejected,
		LastMeasurement:    lastMeas,
		Pose:               pose,
	}, nil
}

// ObserveCycle records one completed simulation cycle of the given kind.
func (c *SimCollector) ObserveCycle(kind string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Cycles != nil {
		c.Cycles.WithLabelValues(kind).Inc()
	}
	if c.CycleDurations != nil {
		c.CycleDurations.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// IncIgnoredTimer counts a notification for an unrecognized timer identifier.
func (c *SimCollector) IncIgnoredTimer() {
	if c == nil || c.IgnoredTimerEvents == nil {
		return
	}
	c.IgnoredTimerEvents.Inc()
}

// IncRejectedCommand counts a dropped control command.
func (c *SimCollector) IncRejectedCommand() {
	if c == nil || c.RejectedCommands == nil {
		return
	}
	c.RejectedCommands.Inc()
}

// SetMeasurement records the latest published measurement.
func (c *SimCollector) SetMeasurement(v float64) {
	if c == nil || c.LastMeasurement == nil {
		return
	}
	c.LastMeasurement.Set(v)
}

// SetPose records the latest published state vector component-wise.
func (c *SimCollector) SetPose(state []float64) {
	if c == nil || c.Pose == nil {
		return
	}
	for i, v := range state {
		if i >= len(poseLabels) {
			break
		}
		c.Pose.WithLabelValues(poseLabels[i]).Set(v)
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
