package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/telemetry"
)

// snapshot returns the cached telemetry, or a stale empty one when no
// telemetry source is configured.
func (s *Server) snapshot() telemetry.Snapshot {
	if s.telemetry == nil {
		return telemetry.Snapshot{Stale: true}
	}
	return s.telemetry.Snapshot()
}

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-system-info",
		Method:      http.MethodGet,
		Path:        "/api/system/info",
		Summary:     "System info",
		Description: "Temperature, core voltage, memory, CPU usage and uptime from the telemetry cache",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.SystemInfoResponse, error) {
		snap := s.snapshot()
		data := models.SystemInfoData{Info: snap.Info, Stale: snap.Stale}
		if !snap.RefreshedAt.IsZero() {
			data.RefreshedAt = &snap.RefreshedAt
		}
		return &models.SystemInfoResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-system-power",
		Method:      http.MethodGet,
		Path:        "/api/system/power",
		Summary:     "Power",
		Description: "Supply rails, clocks, memory split and throttling flags",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.SystemPowerResponse, error) {
		snap := s.snapshot()
		return &models.SystemPowerResponse{
			Body: models.SystemPowerData{Power: snap.Power, Stale: snap.Stale},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-system-config",
		Method:      http.MethodGet,
		Path:        "/api/system/config",
		Summary:     "Boot config",
		Description: "Firmware boot configuration, active overlays and CPU governor",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.SystemConfigResponse, error) {
		snap := s.snapshot()
		return &models.SystemConfigResponse{
			Body: models.SystemConfigData{BootConfig: snap.Config, Stale: snap.Stale},
		}, nil
	})
}
