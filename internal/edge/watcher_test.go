package edge

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/pins"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestWatcher(t *testing.T, window time.Duration) (*Watcher, *hw.SimChip, chan Observation) {
	t.Helper()
	chip := hw.NewSimChip()
	ch := make(chan Observation, 16)
	w := New(chip, window, func(o Observation) { ch <- o }, testLogger())
	t.Cleanup(w.Close)
	return w, chip, ch
}

func expectObservation(t *testing.T, ch <-chan Observation, within time.Duration) Observation {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(within):
		t.Fatal("no observation delivered")
		return Observation{}
	}
}

func expectNone(t *testing.T, ch <-chan Observation, within time.Duration) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("unexpected observation %+v", o)
	case <-time.After(within):
	}
}

func TestBurstCoalescesToFinalLevel(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 20*time.Millisecond)

	gen, err := w.Arm(17, pins.EdgeBoth, pins.PullNone)
	if err != nil {
		t.Fatal(err)
	}

	for _, level := range []bool{true, false, true, false, true} {
		chip.Inject(17, level)
	}

	o := expectObservation(t, ch, time.Second)
	if !o.Level || o.Transitions != 5 || o.Pin != 17 || o.Generation != gen {
		t.Errorf("observation = %+v, want level high after 5 transitions", o)
	}
	if o.Time.IsZero() {
		t.Error("observation missing timestamp")
	}
	expectNone(t, ch, 60*time.Millisecond)
}

func TestDefaultDebounceCoalesces(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 0)
	if w.Window() != DefaultDebounce {
		t.Fatalf("Window() = %v, want %v", w.Window(), DefaultDebounce)
	}

	if _, err := w.Arm(22, pins.EdgeBoth, pins.PullNone); err != nil {
		t.Fatal(err)
	}
	chip.Inject(22, true)
	chip.Inject(22, false)
	chip.Inject(22, true)

	o := expectObservation(t, ch, time.Second)
	if !o.Level || o.Transitions != 3 {
		t.Errorf("observation = %+v", o)
	}
	expectNone(t, ch, 4*DefaultDebounce)
}

func TestSeparateWindowsProduceSeparateObservations(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 10*time.Millisecond)
	if _, err := w.Arm(5, pins.EdgeBoth, pins.PullNone); err != nil {
		t.Fatal(err)
	}

	chip.Inject(5, true)
	first := expectObservation(t, ch, time.Second)
	chip.Inject(5, false)
	second := expectObservation(t, ch, time.Second)

	if !first.Level || second.Level {
		t.Errorf("levels = %v, %v; want true, false", first.Level, second.Level)
	}
}

func TestEdgeModeFiltersWindows(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 10*time.Millisecond)

	if _, err := w.Arm(6, pins.EdgeFalling, pins.PullNone); err != nil {
		t.Fatal(err)
	}
	chip.Inject(6, true)
	o := expectObservation(t, ch, time.Second)
	if o.Qualified || !o.Level {
		t.Errorf("rising edge under FALLING = %+v, want unqualified high", o)
	}

	chip.Inject(6, false)
	o = expectObservation(t, ch, time.Second)
	if !o.Qualified || o.Level {
		t.Errorf("expected qualified falling edge reporting low, got %+v", o)
	}

	// A rising pulse that ends low inside one window still qualifies for RISING.
	if _, err := w.Arm(6, pins.EdgeRising, pins.PullNone); err != nil {
		t.Fatal(err)
	}
	chip.Inject(6, true)
	chip.Inject(6, false)
	o = expectObservation(t, ch, time.Second)
	if !o.Qualified || o.Level || o.Transitions != 2 {
		t.Errorf("observation = %+v, want qualified low after 2 transitions", o)
	}
}

func TestUnqualifiedWindowCarriesFinalLevel(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 10*time.Millisecond)
	if _, err := w.Arm(16, pins.EdgeRising, pins.PullUp); err != nil {
		t.Fatal(err)
	}

	chip.Inject(16, false)
	o := expectObservation(t, ch, time.Second)
	if o.Qualified || o.Level || o.Transitions != 1 {
		t.Fatalf("observation = %+v, want unqualified low", o)
	}
	expectNone(t, ch, 40*time.Millisecond)
}

func TestDisarmDiscardsPendingWindow(t *testing.T) {
	w, chip, ch := newTestWatcher(t, 30*time.Millisecond)

	if _, err := w.Arm(13, pins.EdgeBoth, pins.PullUp); err != nil {
		t.Fatal(err)
	}
	if !chip.Line(13).Watched {
		t.Fatal("expected line to be watched")
	}

	chip.Inject(13, false)
	w.Disarm(13)

	if w.Armed(13) {
		t.Error("pin still armed")
	}
	if chip.Line(13).Watched {
		t.Error("line still watched after disarm")
	}
	chip.Inject(13, true)
	expectNone(t, ch, 80*time.Millisecond)
}

func TestArmFailureLeavesPinDisarmed(t *testing.T) {
	w, chip, _ := newTestWatcher(t, 10*time.Millisecond)
	chip.FailNext(26, 1)

	if _, err := w.Arm(26, pins.EdgeBoth, pins.PullNone); err == nil {
		t.Fatal("expected arm failure")
	}
	if w.Armed(26) {
		t.Error("pin armed despite failure")
	}
}
