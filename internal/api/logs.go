package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/logging"
)

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Most recent service log records held in memory",
		Tags:        []string{"system"},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		resp := &models.LogsResponse{}
		resp.Body.Entries = []models.LogEntry{}

		history := logging.History()
		if history == nil {
			return resp, nil
		}
		minRank := levelRank[input.Level]
		keep := func(e logging.Entry) bool {
			if input.Module != "" && e.Module != input.Module {
				return false
			}
			return levelRank[e.Level] >= minRank
		}
		for _, e := range history.Recent(input.Limit, keep) {
			resp.Body.Entries = append(resp.Body.Entries, models.LogEntry{
				Time:       e.Time.UTC().Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		}
		return resp, nil
	})
}
