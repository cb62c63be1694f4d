package pins

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gpionode/internal/board"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore(board.RaspberryPi(""))

	all := s.SnapshotAll()
	if len(all) != 26 {
		t.Fatalf("expected 26 pins, got %d", len(all))
	}
	for i, st := range all {
		if i > 0 && all[i-1].Pin >= st.Pin {
			t.Fatalf("snapshot not ordered at %d", i)
		}
		if st.Function != board.FunctionGPIO || st.Mode != ModeIn || st.Level {
			t.Errorf("pin %d: unexpected default %+v", st.Pin, st)
		}
	}

	if _, ok := s.Snapshot(1); ok {
		t.Error("pin 1 should not exist")
	}
}

func TestStoreCommitBumpsVersion(t *testing.T) {
	s := NewStore(board.RaspberryPi(""))

	unlock := s.Lock(4)
	st, _ := s.Snapshot(4)
	st.Mode = ModeOut
	committed := s.Commit(st)
	unlock()

	if committed[0].Version != 1 {
		t.Errorf("expected version 1, got %d", committed[0].Version)
	}
	got, _ := s.Snapshot(4)
	if got.Mode != ModeOut || got.Version != 1 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestStoreMultiPinCommitIsAtomic(t *testing.T) {
	s := NewStore(board.RaspberryPi(""))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			unlock := s.Lock(2, 3)
			a, _ := s.Snapshot(2)
			b, _ := s.Snapshot(3)
			f := board.FunctionI2C
			if i%2 == 1 {
				f = board.FunctionGPIO
			}
			a.Function, b.Function = f, f
			s.Commit(a, b)
			unlock()
		}
	}()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		all := s.SnapshotAll()
		var p2, p3 State
		for _, st := range all {
			switch st.Pin {
			case 2:
				p2 = st
			case 3:
				p3 = st
			}
		}
		if p2.Function != p3.Function {
			t.Fatalf("torn read: pin 2 %s, pin 3 %s", p2.Function, p3.Function)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStoreLockOrderingAvoidsDeadlock(t *testing.T) {
	s := NewStore(board.RaspberryPi(""))

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock := s.Lock(11, 7, 9, 8, 10)
				unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := s.Lock(7, 8, 9, 10, 11, i%2+2)
				unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}

func TestStoreLockDeduplicates(t *testing.T) {
	s := NewStore(board.RaspberryPi(""))
	unlock := s.Lock(4, 4, 99)
	unlock()

	unlock = s.Lock(4)
	unlock()
}
