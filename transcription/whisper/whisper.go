// Package whisper implements transcription.Provider against a whisper-style
// HTTP endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/skillsenselab/transcribed/transcription"
)

const (
	// ProviderName is the registered name for the whisper provider.
	ProviderName = "whisper"

	defaultTimeout = 180 * time.Second
	pingTimeout    = 15 * time.Second

	// maxDiagnosticBody bounds how much of an error body is kept for the
	// job diagnostic.
	maxDiagnosticBody = 4 * 1024
)

// Config holds configuration for the whisper transcription provider.
type Config struct {
	// URL is the full endpoint the audio is posted to.
	URL string `json:"url" yaml:"url"`
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string `json:"api_key" yaml:"api_key"`
	// Timeout bounds a single transcription call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements transcription.Provider over HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new whisper transcription provider.
func NewProvider(cfg Config) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Ping performs an authenticated GET against the endpoint and returns the
// HTTP status code. Used by the operator connectivity test.
func (p *Provider) Ping(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("whisper: build ping request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &transcription.TransportError{Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Transcribe posts the audio as multipart form data and decodes the
// transcript from the JSON response.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return nil, fmt.Errorf("whisper: write audio data: %w", err)
	}
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	_ = writer.WriteField("attachment_id", req.JobID)
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, &buf)
	if err != nil {
		return nil, fmt.Errorf("whisper: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	p.authorize(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &transcription.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transcription.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &transcription.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(body, maxDiagnosticBody),
		}
	}

	// Decode into a map first: a missing transcript key and an empty
	// transcript are different failures.
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &transcription.InvalidResponseError{Body: string(body)}
	}
	rawTranscript, ok := decoded["transcript"]
	if !ok {
		return nil, &transcription.InvalidResponseError{Body: string(body)}
	}

	var transcript string
	if err := json.Unmarshal(rawTranscript, &transcript); err != nil {
		return nil, &transcription.InvalidResponseError{Body: string(body)}
	}

	return &transcription.Response{
		Transcript: transcript,
		Segments:   decoded["segments"],
	}, nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

var _ transcription.Provider = (*Provider)(nil)
