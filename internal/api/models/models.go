// Package models holds the request and response bodies of the HTTP API.
package models

// HealthData represents the health check body.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Backend string `json:"backend" example:"chardev" doc:"Hardware backend in use"`
	Faulty  []int  `json:"faulty" doc:"Pins degraded by hardware faults"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// VersionData represents build information.
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

// VersionResponse wraps VersionData.
type VersionResponse struct {
	Body VersionData
}

// LogsInput filters GET /api/logs.
type LogsInput struct {
	Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Newest entries to return"`
	Module string `query:"module" doc:"Only entries from this module" example:"edge"`
	Level  string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level"`
}

// LogEntry is one recent log record.
type LogEntry struct {
	Time       string         `json:"time" example:"2025-01-02T15:04:05.123Z"`
	Level      string         `json:"level" example:"warn"`
	Module     string         `json:"module" example:"hw"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogsResponse lists recent log records, oldest first.
type LogsResponse struct {
	Body struct {
		Entries []LogEntry `json:"entries"`
	}
}
