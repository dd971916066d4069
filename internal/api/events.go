package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/hwinterop/internal/api/models"
	"github.com/smazurov/hwinterop/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of device attach, detach, probe and hotplug events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":          models.ConnectedEventData{},
		"device-attached":    events.DeviceAttachedEvent{},
		"device-detached":    events.DeviceDetachedEvent{},
		"format-probed":      events.FormatProbedEvent{},
		"export-unsupported": events.ExportUnsupportedEvent{},
		"render-node":        events.RenderNodeEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if s.eventBus == nil {
			if s.sendConnected(send) == nil {
				<-ctx.Done()
			}
			return
		}

		eventCh := make(chan any, 32)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.DeviceAttachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceDetachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FormatProbedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ExportUnsupportedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RenderNodeEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// flushes the headers before the first bus event
		if err := s.sendConnected(send); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) sendConnected(send sse.Sender) error {
	n := 0
	if s.devices != nil {
		n = len(s.devices.List())
	}
	return send.Data(models.ConnectedEventData{
		Message:   "event stream connected",
		Devices:   n,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
