package va

import "fmt"

// Status is a VA-API status code returned by a failing runtime call.
type Status int

const (
	StatusSuccess               Status = 0x00
	StatusOperationFailed       Status = 0x01
	StatusAllocationFailed      Status = 0x02
	StatusInvalidDisplay        Status = 0x03
	StatusInvalidSurface        Status = 0x06
	StatusInvalidBuffer         Status = 0x07
	StatusInvalidImage          Status = 0x08
	StatusInvalidParameter      Status = 0x12
	StatusUnimplemented         Status = 0x14
	StatusUnsupportedMemoryType Status = 0x24
)

var statusText = map[Status]string{
	StatusSuccess:               "success (no error)",
	StatusOperationFailed:       "operation failed",
	StatusAllocationFailed:      "resource allocation failed",
	StatusInvalidDisplay:        "invalid VADisplay",
	StatusInvalidSurface:        "invalid VASurfaceID",
	StatusInvalidBuffer:         "invalid VABufferID",
	StatusInvalidImage:          "invalid VAImageID",
	StatusInvalidParameter:      "invalid parameter",
	StatusUnimplemented:         "the requested function is not implemented",
	StatusUnsupportedMemoryType: "the requested memory type is not supported",
}

func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("unknown libva error 0x%x", int(s))
}
