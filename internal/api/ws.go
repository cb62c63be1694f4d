package api

import (
	"context"
	"net/http"
	"time"

	"github.com/smazurov/gpionode/internal/broadcast"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// Frame is one WebSocket push message.
type Frame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data"`
}

func (s *Server) registerWebSocketRoute() {
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// handleWebSocket pushes the same stream as /api/events as JSON frames.
// Messages sent by the client are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	patterns := append([]string{"localhost:*", "127.0.0.1:*", "[::1]:*"}, s.options.WSOriginPatterns...)
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
	if err != nil {
		s.logger.Warn("WebSocket accept failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	obs := s.service.Subscribe("ws")
	defer obs.Close()
	auxCh := make(chan any, 10)
	defer s.subscribeAux(auxCh)()

	s.logger.Info("WebSocket client connected", "remote_addr", r.RemoteAddr, "observer", obs.ID.String())

	// CloseRead discards client messages and cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	status, reason := s.pushFrames(ctx, ws, obs, auxCh)
	ws.Close(status, reason)
	s.logger.Info("WebSocket client disconnected", "remote_addr", r.RemoteAddr, "dropped", obs.Dropped())
}

func (s *Server) pushFrames(ctx context.Context, ws *websocket.Conn, obs *broadcast.Observer, auxCh <-chan any) (websocket.StatusCode, string) {
	write := func(f Frame) error {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, ws, f)
	}

	data := s.pinsData()
	if err := write(Frame{Type: eventSync, Seq: data.Seq, Data: data}); err != nil {
		return websocket.StatusGoingAway, ""
	}

	pinCh := make(chan broadcast.Event)
	go pumpPins(ctx, obs, pinCh)

	for {
		var f Frame
		select {
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				return websocket.StatusGoingAway, "server shutting down"
			}
			return websocket.StatusNormalClosure, ""
		case ev, ok := <-pinCh:
			if !ok {
				return websocket.StatusGoingAway, "server shutting down"
			}
			f = Frame{Type: eventPinStateChange, Seq: ev.Seq, Data: ev}
		case ev := <-auxCh:
			f = Frame{Type: auxEventName(ev), Data: ev}
		}
		if err := write(f); err != nil {
			return websocket.StatusGoingAway, ""
		}
	}
}
