package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"recording-insights-go/internal/logger"
)

func newTestClient(url string) *Client {
	return NewClient(url, "test-key", "test-model", 5*time.Second, logger.Discard())
}

func chatResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestGenerateSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatResponse("  A call summary.  "))
	}))
	defer srv.Close()

	summary, err := newTestClient(srv.URL).GenerateSummary(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "A call summary." {
		t.Fatalf("summary = %q", summary)
	}
}

func TestGenerateSummaryRateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateSummary(context.Background(), "transcript")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("rate limiting must not be retried, got %d calls", n)
	}
}

func TestGenerateSummaryRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatResponse("recovered"))
	}))
	defer srv.Close()

	summary, err := newTestClient(srv.URL).GenerateSummary(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "recovered" {
		t.Fatalf("summary = %q", summary)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestGenerateCoachingFencedJSON(t *testing.T) {
	content := "```json\n{\"overall_score\": 7.5, \"strengths\": [\"rapport\"], \"improvements\": [\"discovery\"], \"next_steps\": \"book demo\"}\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatResponse(content))
	}))
	defer srv.Close()

	eval, err := newTestClient(srv.URL).GenerateCoaching(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.OverallScore != 7.5 {
		t.Fatalf("score = %v", eval.OverallScore)
	}
	if len(eval.Strengths) != 1 || eval.Strengths[0] != "rapport" {
		t.Fatalf("strengths = %v", eval.Strengths)
	}
}

func TestGenerateCoachingInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatResponse("I cannot evaluate this call."))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateCoaching(context.Background(), "transcript")
	if !errors.Is(err, ErrInvalidCoachingJSON) {
		t.Fatalf("expected ErrInvalidCoachingJSON, got %v", err)
	}
}

func TestExtractFencedJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractFencedJSON(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
