package hwdec

import (
	"slices"
	"sync"
)

// DeviceRecord is the public part of a hardware device, as seen by decoders
// picking a device to decode into.
type DeviceRecord struct {
	ID               string
	DriverName       string
	SupportedFormats FormatSet
	// Handle is the device object itself, for consumers that know its type.
	Handle any
}

// Registry tracks the hardware devices currently published in the process.
type Registry struct {
	mu      sync.RWMutex
	records []*DeviceRecord
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add publishes rec. Adding the same record twice is a no-op.
func (r *Registry) Add(rec *DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.records, rec) {
		return
	}
	r.records = append(r.records, rec)
}

// Remove withdraws rec and reports whether it was published.
func (r *Registry) Remove(rec *DeviceRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.Index(r.records, rec)
	if idx < 0 {
		return false
	}
	r.records = slices.Delete(r.records, idx, idx+1)
	return true
}

// Get returns the first record with the given id.
func (r *Registry) Get(id string) (*DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return nil, false
}

// All returns the published records in registration order.
func (r *Registry) All() []*DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.records)
}

// FindByFormat returns the first device that can map sw.
func (r *Registry) FindByFormat(sw ImageFormat) (*DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.SupportedFormats.Contains(sw) {
			return rec, true
		}
	}
	return nil, false
}
