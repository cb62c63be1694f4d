package gpio

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/smazurov/gpionode/internal/pins"
)

// ApplyLabels applies label changes from a labels file. Pins whose name
// and description already match are skipped so a reload without edits
// publishes nothing. It returns how many pins changed.
func (s *Service) ApplyLabels(ctx context.Context, labels map[int]pins.SetLabel) (int, error) {
	var (
		applied int
		errs    []error
	)
	for _, pin := range slices.Sorted(maps.Keys(labels)) {
		change := labels[pin]
		cur, err := s.Snapshot(pin)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if labelMatches(cur, change) {
			continue
		}
		if _, err := s.Apply(ctx, pin, change); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		s.logger.Info("Pin labels applied", "pins", applied)
	}
	return applied, errors.Join(errs...)
}

func labelMatches(cur pins.State, change pins.SetLabel) bool {
	if change.Name != nil && *change.Name != cur.Name {
		return false
	}
	if change.Description != nil && *change.Description != cur.Description {
		return false
	}
	return true
}
