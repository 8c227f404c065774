package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveCycleRecordsCountAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveCycle("state", 2*time.Millisecond)
	collector.ObserveCycle("state", 3*time.Millisecond)
	collector.ObserveCycle("measurement", time.Millisecond)

	if got := testutil.ToFloat64(collector.Cycles.WithLabelValues("state")); got != 2 {
		t.Fatalf("sim_cycles_total{kind=state} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Cycles.WithLabelValues("measurement")); got != 1 {
		t.Fatalf("sim_cycles_total{kind=measurement} = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "sim_cycle_duration_seconds", map[string]string{
		"kind": "state",
	}); count != 2 {
		t.Fatalf("sim_cycle_duration_seconds{kind=state} sample_count = %d, want 2", count)
	}
}

func TestCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.IncIgnoredTimer()
	collector.IncIgnoredTimer()
	collector.IncRejectedCommand()
	collector.SetMeasurement(1.25)
	collector.SetPose([]float64{0.5, -0.5, 0.1})

	if got := testutil.ToFloat64(collector.IgnoredTimerEvents); got != 2 {
		t.Fatalf("sim_ignored_timer_events_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.RejectedCommands); got != 1 {
		t.Fatalf("sim_rejected_commands_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.LastMeasurement); got != 1.25 {
		t.Fatalf("sim_last_measurement = %v, want 1.25", got)
	}
	if got := testutil.ToFloat64(collector.Pose.WithLabelValues("y")); got != -0.5 {
		t.Fatalf("sim_pose{component=y} = %v, want -0.5", got)
	}
}

func TestSetPoseHandlesVelocityBlock(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.SetPose([]float64{1, 2, 3, 4, 5, 6})
	if got := testutil.ToFloat64(collector.Pose.WithLabelValues("vtheta")); got != 6 {
		t.Fatalf("sim_pose{component=vtheta} = %v, want 6", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveCycle("state", time.Millisecond)
	collector.SetMeasurement(2.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"sim_cycles_total", "sim_last_measurement"} {
		if !strings.Contains(body, want) {
			t.Fatalf("/metrics body missing %q", want)
		}
	}
}

func TestNewSimCollectorTwiceReturnsExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	b, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	a.IncIgnoredTimer()
	b.IncIgnoredTimer()
	if got := testutil.ToFloat64(a.IgnoredTimerEvents); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if !matchLabels(m.GetLabel(), labels) {
				continue
			}
			return m.GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	got := make(map[string]string, len(pairs))
	for _, p := range pairs {
		got[p.GetName()] = p.GetValue()
	}
	if len(got) != len(want) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
