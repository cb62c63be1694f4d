package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/gpionode/internal/telemetry"
)

var (
	temperature = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "temperature_celsius",
		Help:      "SoC temperature",
	})

	coreVoltage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "core_voltage_volts",
		Help:      "Core rail voltage",
	})

	cpuUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "cpu_usage_percent",
		Help:      "CPU usage since the previous refresh",
	})

	memoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "memory_bytes",
		Help:      "Host memory by state",
	}, []string{"state"})

	clockHz = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "clock_hz",
		Help:      "Firmware clock frequencies",
	}, []string{"clock"})

	throttled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "throttled",
		Help:      "Current firmware throttling conditions",
	}, []string{"condition"})

	telemetryStale = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "stale",
		Help:      "Whether the served telemetry snapshot is stale",
	})

	telemetryRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "refresh_duration_seconds",
		Help:      "Telemetry collection time",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 3},
	})

	telemetryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "refresh_failures_total",
		Help:      "Failed telemetry refreshes",
	})
)

// RecordTelemetry exports one refresh result. Gauges keep their previous
// values when the refresh failed.
func RecordTelemetry(snap telemetry.Snapshot, failed bool, took time.Duration) {
	telemetryRefreshDuration.Observe(took.Seconds())
	telemetryStale.Set(boolValue(snap.Stale))
	if failed {
		telemetryFailuresTotal.Inc()
		return
	}

	info := snap.Info
	temperature.Set(info.Temperature)
	coreVoltage.Set(info.Voltage)
	cpuUsage.Set(info.CPUUsage)
	memoryBytes.WithLabelValues("used").Set(float64(info.Memory.Used))
	memoryBytes.WithLabelValues("free").Set(float64(info.Memory.Free))
	memoryBytes.WithLabelValues("total").Set(float64(info.Memory.Total))
	for name, hz := range snap.Power.Clocks {
		clockHz.WithLabelValues(name).Set(float64(hz))
	}
	th := snap.Power.Throttling
	throttled.WithLabelValues("under_voltage").Set(boolValue(th.UnderVoltage))
	throttled.WithLabelValues("frequency_capped").Set(boolValue(th.FrequencyCapped))
	throttled.WithLabelValues("throttled").Set(boolValue(th.Throttled))
	throttled.WithLabelValues("soft_temp_limit").Set(boolValue(th.SoftTempLimit))
}
