// Package transcription defines the transcription provider interface and
// common types for interacting with speech-to-text backends.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Request holds parameters for a transcription call.
type Request struct {
	// Audio is the clip content to transcribe.
	Audio io.Reader
	// FileName is the file name sent to the backend.
	FileName string
	// Language is the expected language of the audio (e.g. "fr-FR").
	Language string
	// JobID is passed to the backend for correlation.
	JobID string
}

// Response holds the result of a transcription call.
type Response struct {
	// Transcript is the full transcription text.
	Transcript string `json:"transcript"`
	// Segments contains time-aligned transcript data, passed through opaquely.
	Segments json.RawMessage `json:"segments,omitempty"`
}

// Provider is the interface that transcription backends must implement.
type Provider interface {
	// Name returns the backend name.
	Name() string

	// Ping checks backend reachability and returns the HTTP status code of
	// a lightweight authenticated request.
	Ping(ctx context.Context) (int, error)

	// Transcribe sends audio for transcription and returns the result.
	// Failures are reported as *TransportError, *HTTPError or
	// *InvalidResponseError so callers can map them to job outcomes.
	Transcribe(ctx context.Context, req Request) (*Response, error)
}

// TransportError reports that the backend could not be reached or the
// request did not complete.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transcription: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx backend response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("transcription: backend returned %d: %s", e.StatusCode, e.Body)
}

// InvalidResponseError reports a 2xx response whose body carries no
// transcript field. The raw body is retained for operator diagnosis.
type InvalidResponseError struct {
	Body string
}

func (e *InvalidResponseError) Error() string {
	return "transcription: response carries no transcript"
}
