package prediction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed query. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Message
}

// ConfigurationError reports a missing or misconfigured collaborator
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration error: %s", e.Component)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DataSourceError reports that the check-in source could not be read
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("check-in source %s failed: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps an orchestrator error to the status the HTTP layer should return
func HTTPStatus(err error) int {
	var (
		verr *ValidationError
		cerr *ConfigurationError
		derr *DataSourceError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusInternalServerError
	case errors.As(err, &derr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
