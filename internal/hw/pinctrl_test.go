package hw

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestPinctrlMux(t *testing.T) {
	var got []string
	m := NewPinctrl(func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return nil, nil
	})

	if err := m.Mux(18, "a5"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"pinctrl", "set", "18", "a5"}; !slices.Equal(got, want) {
		t.Errorf("command = %v, want %v", got, want)
	}
}

func TestPinctrlMuxError(t *testing.T) {
	m := NewPinctrl(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid GPIO\n"), errors.New("exit status 1")
	})

	err := m.Mux(99, "a0")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "pinctrl set 99 a0: exit status 1: Invalid GPIO"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
