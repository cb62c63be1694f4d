package events

import (
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/telemetry"
)

// Event type constants for kelindar/event.
const (
	TypePinStateChanged uint32 = iota + 1
	TypePinFault
	TypeObserverDropped
	TypeTelemetryRefreshed
	TypeLabelsReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PinStateChangedEvent mirrors every event published on the broadcast hub.
type PinStateChangedEvent struct {
	broadcast.Event
}

// Type returns the event type identifier for PinStateChangedEvent.
func (e PinStateChangedEvent) Type() uint32 { return TypePinStateChanged }

// PinFaultEvent is published when a pin is degraded to faulty.
type PinFaultEvent struct {
	Pin       int    `json:"pin" example:"18" doc:"BCM GPIO number"`
	Fault     string `json:"fault" doc:"Last hardware error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PinFaultEvent.
func (e PinFaultEvent) Type() uint32 { return TypePinFault }

// ObserverDroppedEvent is published when an observer loses its oldest
// queued event.
type ObserverDroppedEvent struct {
	Observer string `json:"observer" example:"sse" doc:"Observer name"`
}

// Type returns the event type identifier for ObserverDroppedEvent.
func (e ObserverDroppedEvent) Type() uint32 { return TypeObserverDropped }

// TelemetryRefreshedEvent is published after every telemetry refresh,
// successful or not.
type TelemetryRefreshedEvent struct {
	Snapshot telemetry.Snapshot `json:"snapshot" doc:"Current telemetry snapshot"`
	Error    string             `json:"error,omitempty" doc:"Refresh error, if the refresh failed"`
	Duration float64            `json:"duration_seconds" doc:"Refresh duration in seconds"`
}

// Type returns the event type identifier for TelemetryRefreshedEvent.
func (e TelemetryRefreshedEvent) Type() uint32 { return TypeTelemetryRefreshed }

// LabelsReloadedEvent is published when the pin label file is reloaded.
type LabelsReloadedEvent struct {
	Labels    int    `json:"labels" example:"4" doc:"Number of labelled pins"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LabelsReloadedEvent.
func (e LabelsReloadedEvent) Type() uint32 { return TypeLabelsReloaded }
