package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skillsenselab/transcribed/transcription"
)

func newRequest(audio string) transcription.Request {
	return transcription.Request{
		Audio:    strings.NewReader(audio),
		FileName: "clip.webm",
		Language: "fr-FR",
		JobID:    "job-123",
	}
}

func TestProvider_TranscribeSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		if got := r.FormValue("language"); got != "fr-FR" {
			t.Errorf("language = %q, want fr-FR", got)
		}
		if got := r.FormValue("attachment_id"); got != "job-123" {
			t.Errorf("attachment_id = %q, want job-123", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer file.Close()
		if header.Filename != "clip.webm" {
			t.Errorf("filename = %q, want clip.webm", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake-audio-bytes" {
			t.Errorf("audio payload = %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript":"bonjour le monde","segments":[{"start":0,"end":1.5}]}`))
	}))
	defer srv.Close()

	provider := NewProvider(Config{URL: srv.URL, APIKey: "secret-key"})
	resp, err := provider.Transcribe(context.Background(), newRequest("fake-audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if resp.Transcript != "bonjour le monde" {
		t.Errorf("transcript = %q", resp.Transcript)
	}
	if len(resp.Segments) == 0 {
		t.Error("expected segments to be carried through")
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", gotAuth)
	}
}

func TestProvider_TranscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream overloaded"))
	}))
	defer srv.Close()

	provider := NewProvider(Config{URL: srv.URL})
	_, err := provider.Transcribe(context.Background(), newRequest("x"))

	var httpErr *transcription.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Body, "upstream overloaded") {
		t.Errorf("body = %q", httpErr.Body)
	}
}

func TestProvider_TranscribeInvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"missing transcript key", `{"status":"done"}`},
		{"transcript wrong type", `{"transcript":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			provider := NewProvider(Config{URL: srv.URL})
			_, err := provider.Transcribe(context.Background(), newRequest("x"))

			var invalid *transcription.InvalidResponseError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidResponseError, got %v", err)
			}
			if invalid.Body != tt.body {
				t.Errorf("captured body = %q, want %q", invalid.Body, tt.body)
			}
		})
	}
}

func TestProvider_TranscribeEmptyTranscriptIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript":""}`))
	}))
	defer srv.Close()

	provider := NewProvider(Config{URL: srv.URL})
	resp, err := provider.Transcribe(context.Background(), newRequest("x"))
	if err != nil {
		t.Fatalf("an empty transcript is a valid response, got error: %v", err)
	}
	if resp.Transcript != "" {
		t.Errorf("transcript = %q, want empty", resp.Transcript)
	}
}

func TestProvider_TranscribeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	provider := NewProvider(Config{URL: srv.URL})
	_, err := provider.Transcribe(context.Background(), newRequest("x"))

	var transportErr *transcription.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestProvider_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("ping method = %s, want GET", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	provider := NewProvider(Config{URL: srv.URL})
	code, err := provider.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	// Reachability is what matters; any HTTP status proves the host answers.
	if code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
}
