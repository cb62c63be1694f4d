package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/events"
)

// Push event names shared by the SSE and WebSocket endpoints.
const (
	eventSync           = "sync"
	eventPinStateChange = "pin_state_change"
	eventTelemetry      = "telemetry"
	eventLabelsReloaded = "labels_reloaded"
)

// pumpPins forwards observer events to ch until ctx ends or the observer is
// closed. The observer's own queue absorbs bursts, so ch can be unbuffered.
func pumpPins(ctx context.Context, obs *broadcast.Observer, ch chan<- broadcast.Event) {
	defer close(ch)
	for {
		ev, err := obs.Next(ctx)
		if err != nil {
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// auxEventName returns the push event name of a bus event.
func auxEventName(ev any) string {
	switch ev.(type) {
	case events.TelemetryRefreshedEvent:
		return eventTelemetry
	case events.LabelsReloadedEvent:
		return eventLabelsReloaded
	}
	return ""
}

// subscribeAux subscribes ch to the non-pin events pushed to clients.
func (s *Server) subscribeAux(ch chan<- any) func() {
	if s.eventBus == nil {
		return func() {}
	}
	unsubs := []func(){
		events.SubscribeToChannel[events.TelemetryRefreshedEvent](s.eventBus, ch),
		events.SubscribeToChannel[events.LabelsReloadedEvent](s.eventBus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "A sync listing followed by every pin_state_change in sequence order. " +
			"A gap in seq means this client fell behind and lost events; re-sync from GET /api/pins.",
		Tags: []string{"events"},
	}, map[string]any{
		eventSync:           models.PinsData{},
		eventPinStateChange: broadcast.Event{},
		eventTelemetry:      events.TelemetryRefreshedEvent{},
		eventLabelsReloaded: events.LabelsReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-s.ctx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		obs := s.service.Subscribe("sse")
		defer obs.Close()

		auxCh := make(chan any, 10)
		defer s.subscribeAux(auxCh)()

		// Subscribe before listing so nothing falls between the two.
		data := s.pinsData()
		if err := send(sse.Message{ID: int(data.Seq), Data: data}); err != nil {
			return
		}

		pinCh := make(chan broadcast.Event)
		go pumpPins(ctx, obs, pinCh)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-pinCh:
				if !ok {
					return
				}
				if err := send(sse.Message{ID: int(ev.Seq), Data: ev}); err != nil {
					return
				}
			case ev := <-auxCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
