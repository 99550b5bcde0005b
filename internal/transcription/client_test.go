package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recording-insights-go/internal/logger"
	"recording-insights-go/internal/types"
)

func newTestClient(url string) *Client {
	return NewClient(url, "test-key", "whisper-1", 5*time.Second, logger.Discard())
}

func TestTranscribeVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" hello world ","duration":42.5,"segments":[{"start":0,"end":42.5,"text":"hello world"}]}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("audio"), "call.mp3", types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.Duration == nil || *result.Duration != 42.5 {
		t.Fatalf("duration = %v", result.Duration)
	}
	if len(result.Segments) != 1 || result.Segments[0].End != 42.5 {
		t.Fatalf("segments = %+v", result.Segments)
	}
}

func TestTranscribeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("audio"), "call.mp3", types.TranscribeOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"The audio file could be corrupted or unsupported"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("audio"), "call.mp3", types.TranscribeOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if !IsCorruptedOrUnsupported(err) {
		t.Fatal("corrupted error not classified")
	}
}

func TestIsCorruptedOrUnsupported(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("file is corrupted"), true},
		{errors.New("Unsupported media type"), true},
		{&APIError{StatusCode: 400, Message: "audio appears CORRUPTED"}, true},
		{errors.New("connection refused"), false},
		{ErrRateLimited, false},
	}
	for _, tc := range cases {
		if got := IsCorruptedOrUnsupported(tc.err); got != tc.want {
			t.Errorf("IsCorruptedOrUnsupported(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestTranscribeTextFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain transcript\n")
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("audio"), "call.mp3",
		types.TranscribeOptions{ResponseFormat: "text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "plain transcript" {
		t.Fatalf("text = %q", result.Text)
	}
}
