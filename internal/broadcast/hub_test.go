package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gpionode/internal/pins"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pinEvent(pin int, level bool) Event {
	st := pins.Default(pin)
	st.Level = level
	return NewEvent(st, CauseCommand, "level")
}

func TestPublishAssignsSequence(t *testing.T) {
	h := NewHub(testLogger())
	o := h.Subscribe("test")
	defer o.Close()

	for i := range 3 {
		ev := h.Publish(pinEvent(4, i%2 == 0))
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
	}

	ctx := context.Background()
	for i := range 3 {
		ev, err := o.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("received seq %d, want %d", ev.Seq, i+1)
		}
		if ev.Timestamp.IsZero() {
			t.Error("missing timestamp")
		}
	}
}

func TestDropOldestLeavesDetectableGap(t *testing.T) {
	var drops []string
	var mu sync.Mutex
	h := NewHub(testLogger(), WithCapacity(4), WithDropHook(func(name string) {
		mu.Lock()
		drops = append(drops, name)
		mu.Unlock()
	}))

	slow := h.Subscribe("slow")
	defer slow.Close()

	for range 10 {
		h.Publish(pinEvent(17, true))
	}

	if slow.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6", slow.Dropped())
	}
	mu.Lock()
	if len(drops) != 6 || drops[0] != "slow" {
		t.Errorf("drop hook calls = %v", drops)
	}
	mu.Unlock()

	ctx := context.Background()
	first, _ := slow.Next(ctx)
	if first.Seq != 7 {
		t.Errorf("first retained seq = %d, want 7 (gap after 0)", first.Seq)
	}
	prev := first.Seq
	for slow.Pending() > 0 {
		ev, _ := slow.Next(ctx)
		if ev.Seq != prev+1 {
			t.Errorf("unexpected gap inside retained events: %d after %d", ev.Seq, prev)
		}
		prev = ev.Seq
	}
}

func TestSlowObserverDoesNotBlockOthers(t *testing.T) {
	h := NewHub(testLogger(), WithCapacity(2))
	slow := h.Subscribe("slow")
	defer slow.Close()
	fast := h.Subscribe("fast")
	defer fast.Close()

	received := make(chan uint64, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			ev, err := fast.Next(ctx)
			if err != nil {
				return
			}
			received <- ev.Seq
		}
	}()

	done := make(chan struct{})
	go func() {
		for i := range 50 {
			h.Publish(pinEvent(i%5+2, true))
			time.Sleep(100 * time.Microsecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked")
	}

	if slow.Dropped() == 0 {
		t.Error("slow observer should have dropped events")
	}

	deadline := time.After(2 * time.Second)
	var last uint64
	for last < 50 {
		select {
		case seq := <-received:
			last = seq
		case <-deadline:
			t.Fatalf("fast observer only reached seq %d", last)
		}
	}
}

func TestPerPinOrderingUnderConcurrency(t *testing.T) {
	h := NewHub(testLogger(), WithCapacity(10_000))
	observers := []*Observer{h.Subscribe("a"), h.Subscribe("b")}

	const perPin = 200
	var wg sync.WaitGroup
	for pin := 2; pin < 6; pin++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perPin {
				st := pins.Default(pin)
				st.Version = uint64(i + 1)
				h.Publish(NewEvent(st, CauseCommand, "level"))
			}
		}()
	}
	wg.Wait()

	ctx := context.Background()
	for _, o := range observers {
		lastVersion := make(map[int]uint64)
		var lastSeq uint64
		for o.Pending() > 0 {
			ev, err := o.Next(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if ev.Seq <= lastSeq {
				t.Fatalf("observer %s: seq %d after %d", o.Name, ev.Seq, lastSeq)
			}
			lastSeq = ev.Seq
			if ev.Record.Version <= lastVersion[ev.Pin] {
				t.Fatalf("observer %s: pin %d version %d after %d", o.Name, ev.Pin, ev.Record.Version, lastVersion[ev.Pin])
			}
			lastVersion[ev.Pin] = ev.Record.Version
		}
		for pin := 2; pin < 6; pin++ {
			if lastVersion[pin] != perPin {
				t.Errorf("observer %s: pin %d ended at version %d", o.Name, pin, lastVersion[pin])
			}
		}
	}
}

func TestCloseUnblocksObserver(t *testing.T) {
	h := NewHub(testLogger())
	o := h.Subscribe("waiting")

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	h.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}

	if h.Observers() != 0 {
		t.Errorf("Observers() = %d after Close", h.Observers())
	}
}

func TestObserverCloseUnsubscribes(t *testing.T) {
	h := NewHub(testLogger())
	o := h.Subscribe("short-lived")
	if h.Observers() != 1 {
		t.Fatalf("Observers() = %d", h.Observers())
	}
	o.Close()
	o.Close()
	if h.Observers() != 0 {
		t.Errorf("Observers() = %d after Close", h.Observers())
	}

	h.Publish(pinEvent(4, true))
	if o.Pending() != 0 {
		t.Error("closed observer received an event")
	}
}

func TestMirrorSeesEveryEventInOrder(t *testing.T) {
	var seqs []uint64
	h := NewHub(testLogger(), WithMirror(func(ev Event) { seqs = append(seqs, ev.Seq) }))

	for range 5 {
		h.Publish(pinEvent(4, false))
	}
	if len(seqs) != 5 || seqs[0] != 1 || seqs[4] != 5 {
		t.Errorf("mirror saw %v", seqs)
	}
}

func TestNewEventCarriesTrigger(t *testing.T) {
	st := pins.Default(17)
	st.Level = true
	st.Edge = pins.EdgeRising
	st.LastTrigger = time.Unix(1700000000, 500_000_000)

	ev := NewEvent(st, CauseEdge, "")
	if ev.LastTrigger == nil || *ev.LastTrigger != 1700000000.5 {
		t.Fatalf("LastTrigger = %v", ev.LastTrigger)
	}
	if !ev.State || ev.Record.State == nil || !*ev.Record.State {
		t.Error("expected high state")
	}
}
