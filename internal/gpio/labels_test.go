package gpio

import (
	"context"
	"testing"

	"github.com/smazurov/gpionode/internal/pins"
)

func ptr[T any](v T) *T { return &v }

func TestApplyLabels(t *testing.T) {
	f := newFixture(t, nil)

	labels := map[int]pins.SetLabel{
		17: {Name: ptr("Door"), Description: ptr("Reed switch")},
		18: {Name: ptr("Fan")},
		40: {Name: ptr("Nowhere")},
	}
	n, err := f.svc.ApplyLabels(context.Background(), labels)
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}
	if pins.CodeOf(err) != pins.CodeUnknownPin {
		t.Errorf("err = %v, want UnknownPin for pin 40", err)
	}

	st, _ := f.svc.Snapshot(17)
	if st.Name != "Door" || st.Description != "Reed switch" {
		t.Errorf("pin 17 = %q / %q", st.Name, st.Description)
	}
	if got := len(f.events()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}

	// Reapplying unchanged labels publishes nothing.
	delete(labels, 40)
	n, err = f.svc.ApplyLabels(context.Background(), labels)
	if n != 0 || err != nil {
		t.Errorf("reapply = %d, %v", n, err)
	}
	if got := len(f.events()); got != 0 {
		t.Errorf("events after reapply = %d, want 0", got)
	}
}
