package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hwinterop/internal/api/models"
	"github.com/smazurov/hwinterop/internal/logging"
)

// LogQueryInput filters the log history.
type LogQueryInput struct {
	Module string `query:"module" example:"vaapi" doc:"Only entries of this module"`
	Limit  int    `query:"limit" minimum:"0" example:"50" doc:"Newest entries to return, 0 for all"`
}

// registerLogRoutes registers the log history endpoint.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Recent log records kept in memory, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogQueryInput) (*models.LogListResponse, error) {
		entries := []models.LogEntryData{}
		for _, e := range logging.History() {
			if input.Module != "" && e.Module != input.Module {
				continue
			}
			entries = append(entries, models.LogEntryData{
				Timestamp:  e.Timestamp,
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		return &models.LogListResponse{Body: models.LogListData{Entries: entries, Count: len(entries)}}, nil
	})
}
