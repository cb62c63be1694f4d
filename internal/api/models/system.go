package models

import (
	"time"

	"github.com/smazurov/gpionode/internal/telemetry"
)

// SystemInfoData is the dashboard vitals summary.
type SystemInfoData struct {
	telemetry.Info
	RefreshedAt *time.Time `json:"refreshed_at,omitempty" doc:"Time of the last successful refresh"`
	Stale       bool       `json:"stale" doc:"True when the data is older than one refresh"`
}

// SystemInfoResponse wraps SystemInfoData.
type SystemInfoResponse struct {
	Body SystemInfoData
}

// SystemPowerData is the extended power view.
type SystemPowerData struct {
	telemetry.Power
	Stale bool `json:"stale" doc:"True when the data is older than one refresh"`
}

// SystemPowerResponse wraps SystemPowerData.
type SystemPowerResponse struct {
	Body SystemPowerData
}

// SystemConfigData is the firmware configuration view.
type SystemConfigData struct {
	telemetry.BootConfig
	Stale bool `json:"stale" doc:"True when the data is older than one refresh"`
}

// SystemConfigResponse wraps SystemConfigData.
type SystemConfigResponse struct {
	Body SystemConfigData
}
