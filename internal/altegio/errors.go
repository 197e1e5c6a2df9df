package altegio

import "fmt"

// ConfigurationError means the client cannot be used at all: missing or
// malformed secrets. It is raised before any network call is attempted so a
// bad token never surfaces as an opaque transport failure.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "altegio: configuration error: " + e.Reason
}

// TransportError is a connection-level failure: timeout, refused connection,
// DNS. Recoverable from the discovery cascade's point of view.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("altegio: %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is a 4xx/5xx response from the platform.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("altegio: %s: upstream status %d: %s", e.Op, e.StatusCode, e.Body)
}

// NotFound reports whether the upstream answered 404.
func (e *UpstreamError) NotFound() bool { return e.StatusCode == 404 }

// DataShapeError means a response arrived but could not be interpreted.
type DataShapeError struct {
	Op     string
	Reason string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("altegio: %s: unexpected payload: %s", e.Op, e.Reason)
}
