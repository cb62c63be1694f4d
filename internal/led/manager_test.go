package led

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/events"
	"github.com/smazurov/gpionode/internal/pins"
)

type setCall struct {
	name    string
	on      bool
	pattern Pattern
}

type mockController struct {
	mu    sync.Mutex
	calls []setCall
}

func (m *mockController) Set(name string, on bool, pattern Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, setCall{name, on, pattern})
	return nil
}

func (m *mockController) Available() []string { return []string{StatusLED} }

func (m *mockController) last() (setCall, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return setCall{}, 0
	}
	return m.calls[len(m.calls)-1], len(m.calls)
}

func (m *mockController) waitFor(t *testing.T, want setCall, calls int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got, n := m.last(); got == want && n == calls {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, n := m.last()
	t.Fatalf("last call = %+v after %d calls, want %+v after %d", got, n, want, calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pinEvent(pin int, faulty bool) events.PinStateChangedEvent {
	st := pins.Default(pin)
	st.Faulty = faulty
	return events.PinStateChangedEvent{Event: broadcast.NewEvent(st, broadcast.CauseCommand, "")}
}

func TestManagerSolidWhenHealthy(t *testing.T) {
	ctrl := &mockController{}
	m := NewManager(ctrl, events.New(), nil, testLogger())
	m.Start()
	defer m.Stop()

	ctrl.waitFor(t, setCall{StatusLED, true, PatternSolid}, 1)
}

func TestManagerBlinksWhileAnyPinFaulty(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	m := NewManager(ctrl, bus, nil, testLogger())
	m.Start()
	defer m.Stop()

	bus.Publish(pinEvent(17, true))
	ctrl.waitFor(t, setCall{StatusLED, true, PatternBlink}, 2)

	bus.Publish(pinEvent(18, true))
	bus.Publish(pinEvent(17, false))
	time.Sleep(50 * time.Millisecond)
	if got, n := ctrl.last(); got.pattern != PatternBlink || n != 2 {
		t.Fatalf("LED changed while pin 18 still faulty: %+v after %d calls", got, n)
	}

	bus.Publish(pinEvent(18, false))
	ctrl.waitFor(t, setCall{StatusLED, true, PatternSolid}, 3)
}

func TestManagerStartsWithKnownFaults(t *testing.T) {
	ctrl := &mockController{}
	m := NewManager(ctrl, events.New(), []int{22}, testLogger())
	m.Start()
	defer m.Stop()

	ctrl.waitFor(t, setCall{StatusLED, true, PatternBlink}, 1)
}

func TestManagerStopTurnsOff(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	m := NewManager(ctrl, bus, nil, testLogger())
	m.Start()
	m.Stop()

	ctrl.waitFor(t, setCall{StatusLED, false, ""}, 2)

	bus.Publish(pinEvent(4, true))
	time.Sleep(50 * time.Millisecond)
	if _, n := ctrl.last(); n != 2 {
		t.Errorf("manager reacted after Stop: %d calls", n)
	}
}
