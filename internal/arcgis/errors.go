package arcgis

import (
	"fmt"

	"github.com/sells-group/gis-compliance/internal/resilience"
)

// TransportError reports a request that never produced a usable response:
// the network call failed or the service answered with a non-2xx status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("arcgis: transport: status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("arcgis: transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transient reports whether repeating the request could succeed.
func (e *TransportError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return resilience.IsTransientHTTPStatus(e.StatusCode)
}

// ProtocolError carries the structured error payload returned by the service.
type ProtocolError struct {
	Code    int
	Message string
	Offset  int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("arcgis: API error: %s", e.Message)
}

// DecodeError reports a response body that is not the expected JSON.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("arcgis: decode page at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
