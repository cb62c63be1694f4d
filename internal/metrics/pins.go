// Package metrics provides Prometheus metrics for pin activity and host
// telemetry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpionode"

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pins",
		Name:      "commands_total",
		Help:      "Pin commands by change kind and result code",
	}, []string{"change", "result"})

	pinEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pins",
		Name:      "events_total",
		Help:      "Published pin_state_change events by cause",
	}, []string{"cause"})

	pinLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pins",
		Name:      "level",
		Help:      "Last known level of GPIO pins (1 high, 0 low)",
	}, []string{"pin"})

	pinFaulty = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pins",
		Name:      "faulty",
		Help:      "Whether a pin is degraded by a persistent hardware fault",
	}, []string{"pin"})

	hardwareFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pins",
		Name:      "hardware_faults_total",
		Help:      "Pins degraded to faulty",
	}, []string{"pin"})

	observerDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "dropped_events_total",
		Help:      "Events discarded from full observer buffers",
	}, []string{"observer"})

	broadcastSeq = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "sequence",
		Help:      "Last broadcast sequence number",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand counts one pin command. An empty result means accepted.
func RecordCommand(change, result string) {
	if result == "" {
		result = "ok"
	}
	commandsTotal.WithLabelValues(change, result).Inc()
}

// RecordPinEvent updates pin gauges from a published event.
func RecordPinEvent(pin int, cause string, level, faulty bool, seq uint64) {
	label := strconv.Itoa(pin)
	pinEventsTotal.WithLabelValues(cause).Inc()
	pinLevel.WithLabelValues(label).Set(boolValue(level))
	pinFaulty.WithLabelValues(label).Set(boolValue(faulty))
	broadcastSeq.Set(float64(seq))
}

// RecordHardwareFault counts a pin degraded to faulty.
func RecordHardwareFault(pin int) {
	hardwareFaultsTotal.WithLabelValues(strconv.Itoa(pin)).Inc()
}

// RecordObserverDrop counts one event dropped for observer.
func RecordObserverDrop(observer string) {
	observerDroppedTotal.WithLabelValues(observer).Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
