package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

// ErrRateLimited marks throttling by the AI gateway; the orchestrator
// records it separately from other failures and never retries it here.
var ErrRateLimited = errors.New("ai gateway rate limited")

// ErrInvalidCoachingJSON means the model replied but its payload was not
// parseable coaching JSON. Callers treat this as coaching absence.
var ErrInvalidCoachingJSON = errors.New("coaching response is not valid json")

const summaryPrompt = `Summarize this sales call transcript in 3-5 sentences.
Cover: who the prospect is, what was discussed, objections raised, and the
agreed next step. Respond with plain prose only.

Transcript:
"""%s"""`

const coachingPrompt = `You are a BDR coaching assistant. Evaluate this sales
call transcript and return ONLY a JSON object with keys:
overall_score (0-10 float),
strengths (list of short phrases),
improvements (list of short phrases),
talk_ratio (rep talk fraction 0-1, or null if not inferable),
next_steps (one-line recommendation),
call_objective (short phrase).

Transcript:
"""%s"""`

// Client calls an OpenAI-compatible chat-completions gateway for the
// secondary analyses. Server errors are retried with exponential backoff;
// rate limiting is surfaced immediately.
type Client struct {
	gatewayURL string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(gatewayURL, apiKey, model string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GenerateSummary produces a prose summary of the transcript.
func (c *Client) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	content, err := c.complete(ctx, fmt.Sprintf(summaryPrompt, transcript), 0.3)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// GenerateCoaching produces a structured coaching evaluation. The model
// response may be wrapped in markdown fences; they are stripped before
// parsing.
func (c *Client) GenerateCoaching(ctx context.Context, transcript string) (*types.CoachingEvaluation, error) {
	content, err := c.complete(ctx, fmt.Sprintf(coachingPrompt, transcript), 0)
	if err != nil {
		return nil, err
	}

	raw := ExtractFencedJSON(content)
	var eval types.CoachingEvaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoachingJSON, err)
	}
	return &eval, nil
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("ai gateway not configured")
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
	}
	data, _ := json.Marshal(reqBody)

	var content string
	var lastErr error
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests {
			return backoff.Permanent(ErrRateLimited)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("ai gateway server error %d: %s", resp.StatusCode, truncate(body))
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("ai gateway error %d: %s", resp.StatusCode, truncate(body)))
		}

		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("unexpected ai gateway response: %s", truncate(body)))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 20 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return "", ErrRateLimited
		}
		if lastErr != nil && !errors.Is(err, lastErr) {
			return "", err
		}
		return "", fmt.Errorf("ai completion failed: %w", err)
	}
	return content, nil
}

// ExtractFencedJSON strips a surrounding ```json ... ``` or ``` ... ```
// fence, returning the inner content. Input without fences passes through
// unchanged.
func ExtractFencedJSON(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
