package apiclient

import "fmt"

// APIError is returned for non-2xx responses that have no more specific type.
type APIError struct {
	StatusCode int
	Message    string
	ErrorCode  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "conversion service error"
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("[%s] %s (status %d)", e.ErrorCode, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

// ValidationError is raised when request parameters are rejected, either
// before sending or by the service.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "invalid request parameters"
	}
	return e.Message
}

// RateLimitError is raised when the service throttles the client.
type RateLimitError struct {
	Message    string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}

// ServiceUnavailableError is raised on 503 responses.
type ServiceUnavailableError struct {
	Message string
}

func (e *ServiceUnavailableError) Error() string {
	if e.Message == "" {
		return "conversion service temporarily unavailable"
	}
	return e.Message
}

// TransportError wraps a network failure; the request never produced a response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
