package agent

import (
	"time"

	"github.com/exalsius/node-agent/internal/constants"
	"github.com/prometheus/client_golang/prometheus"
)

// runMetrics is the outcome of a run, exported for the node_exporter textfile collector.
type runMetrics struct {
	reg *prometheus.Registry

	success     prometheus.Gauge
	timestamp   prometheus.Gauge
	gpuCount    prometheus.Gauge
	failedState *prometheus.GaugeVec
}

func newRunMetrics() runMetrics {
	m := runMetrics{
		reg: prometheus.NewRegistry(),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "last_run_success",
			Help:      "Whether the last agent run succeeded (1) or failed (0).",
		}),
		timestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last agent run finished.",
		}),
		gpuCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "gpu_count",
			Help:      "Number of GPUs reported by the last agent run.",
		}),
		failedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "failed_state",
			Help:      "Step at which the last agent run failed, 1 for the failing step.",
		}, []string{"state"}),
	}

	m.reg.MustRegister(m.success, m.timestamp, m.gpuCount, m.failedState)
	return m
}

// write records the run outcome and writes it atomically to path.
// failed is empty on success.
func (m runMetrics) write(path string, failed State, gpus uint8, at time.Time) error {
	m.success.Set(0)
	if failed == "" {
		m.success.Set(1)
	}
	m.timestamp.Set(float64(at.Unix()))
	m.gpuCount.Set(float64(gpus))
	for _, s := range States {
		v := 0.0
		if s == failed {
			v = 1
		}
		m.failedState.WithLabelValues(string(s)).Set(v)
	}

	return prometheus.WriteToTextfile(path, m.reg)
}
