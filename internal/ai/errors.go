package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/seanblong/docqa/pkg/models"
	"google.golang.org/genai"
)

// StatusError is a non-2xx response from a model backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// Temporary reports rate limiting and server-side failures.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout || e.Code >= 500
}

// IsTransient reports whether err is worth retrying. Caller cancellation and
// invalid input are final; unknown failures are treated as network trouble.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, models.ErrInvalidInput) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrTimeout) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return (&StatusError{Code: apiErr.Code}).Temporary()
	}
	return true
}
