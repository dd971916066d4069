package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hwinterop/internal/api/models"
	"github.com/smazurov/hwinterop/internal/devices"
	"github.com/smazurov/hwinterop/internal/metrics"
)

// DeviceIDInput selects one device.
type DeviceIDInput struct {
	DeviceID string `path:"device_id" example:"renderD128" doc:"Device identifier"`
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-hwdec-devices",
		Method:      http.MethodGet,
		Path:        "/api/hwdec/devices",
		Summary:     "List Devices",
		Description: "List attached VA-API interop devices with their supported software formats",
		Tags:        []string{"hwdec"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		return &models.DeviceListResponse{Body: s.deviceList()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-hwdec-device",
		Method:      http.MethodGet,
		Path:        "/api/hwdec/devices/{device_id}",
		Summary:     "Get Device",
		Description: "Get one attached device",
		Tags:        []string{"hwdec"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *DeviceIDInput) (*models.DeviceResponse, error) {
		if s.devices == nil {
			return nil, huma.Error404NotFound("device not found: " + input.DeviceID)
		}
		info, ok := s.devices.Get(input.DeviceID)
		if !ok {
			return nil, huma.Error404NotFound("device not found: " + input.DeviceID)
		}
		return &models.DeviceResponse{Body: toDeviceData(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reattach-hwdec-devices",
		Method:      http.MethodPost,
		Path:        "/api/hwdec/devices/reattach",
		Summary:     "Re-attach Devices",
		Description: "Close every device and attach it again, repeating the format probe",
		Tags:        []string{"hwdec"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.ReattachResponse, error) {
		if s.devices == nil {
			return nil, huma.Error503ServiceUnavailable("device manager not running")
		}
		s.devices.Reattach()
		return &models.ReattachResponse{Body: s.deviceList()}, nil
	})
}

func (s *Server) deviceList() models.DeviceListData {
	data := models.DeviceListData{Devices: []models.DeviceData{}}
	if s.devices == nil {
		return data
	}
	for _, info := range s.devices.List() {
		data.Devices = append(data.Devices, toDeviceData(info))
	}
	data.Count = len(data.Devices)
	return data
}

func toDeviceData(info devices.Info) models.DeviceData {
	r := info.Report
	d := models.DeviceData{
		ID:            r.ID,
		RenderNode:    info.Node.Path,
		KernelDriver:  info.Node.Driver,
		PCIVendor:     info.Node.Vendor,
		Driver:        r.Driver,
		Vendor:        r.Vendor,
		APIVersion:    r.APIVersion,
		Display:       r.Display,
		Interop:       r.Interop,
		ExportSupport: r.ExportSupport,
		Formats:       r.Formats,
		OpenedAt:      r.OpenedAt,
	}
	if m := metrics.GetDeviceMetrics(r.ID); m != nil {
		d.Metrics = &models.DeviceMetricsData{MapsSucceeded: m.MapsSucceeded, MapsFailed: m.MapsFailed}
	}
	return d
}
