package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/events"
	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/smazurov/gpionode/internal/telemetry"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type sseMessage struct {
	event string
	data  string
}

// readSSE parses messages from body until it is closed.
func readSSE(body *bufio.Scanner, out chan<- sseMessage) {
	var msg sseMessage
	for body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			msg.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			msg.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && msg.data != "":
			out <- msg
			msg = sseMessage{}
		}
	}
	close(out)
}

func nextSSE(t *testing.T, ch <-chan sseMessage) sseMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for SSE message")
	}
	return sseMessage{}
}

func TestSSEStream(t *testing.T) {
	env := newTestEnv(t, func(opts *Options, _ *hw.Config) {
		opts.EventBus = events.New()
	})
	ts := httptest.NewServer(env.server.GetMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}

	messages := make(chan sseMessage, 10)
	go readSSE(bufio.NewScanner(resp.Body), messages)

	first := nextSSE(t, messages)
	if first.event != eventSync || !strings.Contains(first.data, `"definitions"`) {
		t.Fatalf("first message = %+v, want sync listing", first)
	}

	if _, err := env.svc.Apply(context.Background(), 17, pins.SetMode{Mode: pins.ModeOut}); err != nil {
		t.Fatal(err)
	}
	msg := nextSSE(t, messages)
	if msg.event != eventPinStateChange {
		t.Fatalf("event = %q, want %s", msg.event, eventPinStateChange)
	}
	var ev broadcast.Event
	if err := json.Unmarshal([]byte(msg.data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Pin != 17 || ev.Cause != broadcast.CauseCommand || ev.Change != "mode" || ev.Seq == 0 {
		t.Errorf("event = %+v", ev)
	}

	env.server.eventBus.Publish(events.TelemetryRefreshedEvent{Snapshot: telemetry.Snapshot{Stale: true}})
	if msg := nextSSE(t, messages); msg.event != eventTelemetry {
		t.Errorf("event = %q, want %s", msg.event, eventTelemetry)
	}
}

func TestSSEObserverReleasedOnDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.GetMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	messages := make(chan sseMessage, 10)
	go readSSE(bufio.NewScanner(resp.Body), messages)
	nextSSE(t, messages)
	resp.Body.Close()

	// The handler notices the disconnect when its next write fails or its
	// context ends.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := env.svc.Apply(context.Background(), 17, pins.SetPull{Pull: pins.PullUp}); err != nil {
			t.Fatal(err)
		}
		if env.svc.Observers() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("observer still subscribed after disconnect")
}

func TestWebSocketPush(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.GetMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	type frame struct {
		Type string          `json:"type"`
		Seq  uint64          `json:"seq"`
		Data json.RawMessage `json:"data"`
	}

	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read sync: %v", err)
	}
	if f.Type != eventSync {
		t.Fatalf("first frame = %s, want %s", f.Type, eventSync)
	}
	syncSeq := f.Seq

	if _, err := env.svc.Apply(context.Background(), 18, pins.SetFunction{Function: "PWM"}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if f.Type != eventPinStateChange || f.Seq != syncSeq+1 {
		t.Fatalf("frame = %s seq %d, want %s seq %d", f.Type, f.Seq, eventPinStateChange, syncSeq+1)
	}
	var ev broadcast.Event
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Pin != 18 || ev.Record.Function != "PWM" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.GetMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	if err == nil {
		t.Fatal("dial succeeded from a foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
