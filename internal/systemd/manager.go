package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnit is the unit name installed by the package.
const DefaultUnit = "gpionode.service"

// Manager controls the gpionode unit over D-Bus.
type Manager struct {
	conn *dbus.Conn
	unit string
}

// NewManager connects to the system bus, or the user bus when user is set.
func NewManager(ctx context.Context, unit string, user bool) (*Manager, error) {
	if unit == "" {
		unit = DefaultUnit
	}
	connect := dbus.NewSystemConnectionContext
	if user {
		connect = dbus.NewUserConnectionContext
	}
	conn, err := connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn, unit: unit}, nil
}

// UnitStatus is the subset of unit properties reported by the CLI.
type UnitStatus struct {
	Unit        string `json:"unit"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
	LoadState   string `json:"load_state"`
}

// Status reads the unit's load, active and sub state.
func (m *Manager) Status(ctx context.Context) (UnitStatus, error) {
	props, err := m.conn.GetUnitPropertiesContext(ctx, m.unit)
	if err != nil {
		return UnitStatus{}, fmt.Errorf("read %s: %w", m.unit, err)
	}
	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	return UnitStatus{
		Unit:        m.unit,
		ActiveState: str("ActiveState"),
		SubState:    str("SubState"),
		LoadState:   str("LoadState"),
	}, nil
}

// Restart restarts the unit and waits for the job to finish.
func (m *Manager) Restart(ctx context.Context) (string, error) {
	return m.run(ctx, m.conn.RestartUnitContext)
}

// Stop stops the unit and waits for the job to finish.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	return m.run(ctx, m.conn.StopUnitContext)
}

// Start starts the unit and waits for the job to finish.
func (m *Manager) Start(ctx context.Context) (string, error) {
	return m.run(ctx, m.conn.StartUnitContext)
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

func (m *Manager) run(ctx context.Context, job jobFunc) (string, error) {
	done := make(chan string, 1)
	if _, err := job(ctx, m.unit, "replace", done); err != nil {
		return "", fmt.Errorf("%s: %w", m.unit, err)
	}
	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
