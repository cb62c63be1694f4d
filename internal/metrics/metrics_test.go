package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/events"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/smazurov/gpionode/internal/telemetry"
)

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(commandsTotal.WithLabelValues("level", "ok"))
	RecordCommand("level", "")
	RecordCommand("level", "")
	RecordCommand("level", string(pins.CodeModeConflict))

	if got := testutil.ToFloat64(commandsTotal.WithLabelValues("level", "ok")) - before; got != 2 {
		t.Errorf("ok commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(commandsTotal.WithLabelValues("level", "ModeConflict")); got < 1 {
		t.Errorf("ModeConflict commands = %v", got)
	}
}

func TestRecordPinEvent(t *testing.T) {
	RecordPinEvent(21, "edge", true, false, 42)

	if v := testutil.ToFloat64(pinLevel.WithLabelValues("21")); v != 1 {
		t.Errorf("level = %v, want 1", v)
	}
	if v := testutil.ToFloat64(pinFaulty.WithLabelValues("21")); v != 0 {
		t.Errorf("faulty = %v, want 0", v)
	}
	if v := testutil.ToFloat64(broadcastSeq); v != 42 {
		t.Errorf("sequence = %v, want 42", v)
	}
}

func TestSubscribe(t *testing.T) {
	bus := events.New()
	stop := Subscribe(bus)
	defer stop()

	dropsBefore := testutil.ToFloat64(observerDroppedTotal.WithLabelValues("slow-ws"))
	faultsBefore := testutil.ToFloat64(hardwareFaultsTotal.WithLabelValues("26"))

	st := pins.Default(26)
	st.Faulty = true
	bus.Publish(events.PinStateChangedEvent{Event: broadcast.Event{Seq: 7, Pin: 26, Cause: broadcast.CauseFault, Record: st.View()}})
	bus.Publish(events.ObserverDroppedEvent{Observer: "slow-ws"})
	bus.Publish(events.TelemetryRefreshedEvent{
		Snapshot: telemetry.Snapshot{Info: telemetry.Info{Temperature: 51.5}},
		Duration: 0.01,
	})

	// The bus delivers asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(observerDroppedTotal.WithLabelValues("slow-ws"))-dropsBefore == 1 &&
			testutil.ToFloat64(hardwareFaultsTotal.WithLabelValues("26"))-faultsBefore == 1 &&
			testutil.ToFloat64(temperature) == 51.5 &&
			testutil.ToFloat64(pinFaulty.WithLabelValues("26")) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bus events were not recorded")
}

func TestRecordTelemetryFailureKeepsGauges(t *testing.T) {
	snap := telemetry.Snapshot{Info: telemetry.Info{CPUUsage: 33}}
	RecordTelemetry(snap, false, 10*time.Millisecond)

	failuresBefore := testutil.ToFloat64(telemetryFailuresTotal)
	RecordTelemetry(telemetry.Snapshot{Stale: true}, true, time.Millisecond)

	if v := testutil.ToFloat64(cpuUsage); v != 33 {
		t.Errorf("cpu usage = %v, want 33", v)
	}
	if v := testutil.ToFloat64(telemetryStale); v != 1 {
		t.Errorf("stale = %v, want 1", v)
	}
	if v := testutil.ToFloat64(telemetryFailuresTotal) - failuresBefore; v != 1 {
		t.Errorf("failures = %v, want 1", v)
	}
}

func TestHandler(t *testing.T) {
	RecordCommand("pwm", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "gpionode_pins_commands_total") {
		t.Error("expected gpionode metrics in response")
	}
}
