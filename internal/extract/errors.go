package extract

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is returned when the LLM endpoint answers 429.
	ErrRateLimited = errors.New("llm rate limited")
	// ErrResponseInvalid is returned when the LLM answer cannot be decoded.
	ErrResponseInvalid = errors.New("llm response invalid")
	// ErrInvalidInput is returned for requests the endpoint rejects as
	// malformed or unauthorized.
	ErrInvalidInput = errors.New("llm invalid input")
	// ErrUnavailable is returned when no extractor is configured.
	ErrUnavailable = errors.New("extraction unavailable")
)

// UpstreamError reports a 5xx or 408 answer from the LLM endpoint.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm upstream %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *UpstreamError) Temporary() bool {
	return e.Status == http.StatusRequestTimeout || e.Status/100 == 5
}

// Retryable reports whether err is worth another extraction attempt.
func Retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var up *UpstreamError
	return errors.As(err, &up) && up.Temporary()
}
