package metrics

import (
	"time"

	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/events"
)

// Subscribe feeds bus events into the Prometheus collectors and returns a
// function that stops it.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.PinStateChangedEvent) {
			RecordPinEvent(e.Pin, string(e.Cause), e.State, e.Record.Faulty, e.Seq)
			if e.Cause == broadcast.CauseFault {
				RecordHardwareFault(e.Pin)
			}
		}),
		bus.Subscribe(func(e events.ObserverDroppedEvent) {
			RecordObserverDrop(e.Observer)
		}),
		bus.Subscribe(func(e events.TelemetryRefreshedEvent) {
			RecordTelemetry(e.Snapshot, e.Error != "", time.Duration(e.Duration*float64(time.Second)))
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
