package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

// ErrRateLimited is returned when the speech-to-text API throttles the
// request. Callers check it with errors.Is; it is never retried here —
// retry policy belongs to the orchestrator.
var ErrRateLimited = errors.New("transcription rate limited")

// APIError carries the structured failure from the transcription API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription api error %d: %s", e.StatusCode, e.Message)
}

// IsCorruptedOrUnsupported reports whether the error indicates the uploaded
// audio was unreadable. The API signals this in prose, so the message
// substring contract ("corrupted"/"unsupported") is preserved on purpose.
func IsCorruptedOrUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "corrupted") || strings.Contains(msg, "unsupported")
}

// Client talks to a Whisper-style transcription endpoint via multipart
// upload. It performs exactly one attempt per call.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(apiURL, apiKey, model string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Transcribe uploads the buffer and returns the transcript. verbose_json
// responses include duration and segments; plain formats only text.
func (c *Client) Transcribe(ctx context.Context, buf []byte, filename string, opts types.TranscribeOptions) (*types.TranscriptionResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("transcription api key not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(buf); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	w.WriteField("model", c.model)
	format := opts.ResponseFormat
	if format == "" {
		format = "verbose_json"
	}
	w.WriteField("response_format", format)
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	if opts.Temperature != 0 {
		w.WriteField("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	c.log.WithFields(logrus.Fields{
		"filename": filename,
		"bytes":    len(buf),
		"format":   format,
	}).Debug("submitting transcription request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, apiMessage(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(respBody)}
	}

	if format == "text" {
		return &types.TranscriptionResult{Text: strings.TrimSpace(string(respBody))}, nil
	}

	var parsed struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	result := &types.TranscriptionResult{Text: strings.TrimSpace(parsed.Text)}
	if parsed.Duration > 0 {
		d := parsed.Duration
		result.Duration = &d
	}
	for _, s := range parsed.Segments {
		result.Segments = append(result.Segments, types.TranscriptSegment{
			Start: s.Start, End: s.End, Text: s.Text,
		})
	}
	return result, nil
}

// apiMessage pulls the error message out of an OpenAI-style error body,
// falling back to the raw payload.
func apiMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
