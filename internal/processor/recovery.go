package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

// recoveryAttempt is one entry in the ordered corruption-recovery sequence.
// prepare yields the buffer/filename to retry with; attempts whose prepare
// fails are skipped, not fatal.
type recoveryAttempt struct {
	name    string
	prepare func(ctx context.Context) ([]byte, string, error)
}

// runRecovery tries each attempt in order, stopping at the first success.
// Each attempt waits retryDelay first so a transient resource problem has
// time to clear. Returns the successful result and how many attempts were
// made, or the last error once the list is exhausted.
func runRecovery(ctx context.Context, attempts []recoveryAttempt, transcribe func(ctx context.Context, buf []byte, filename string) (*types.TranscriptionResult, error), retryDelay time.Duration, log *logrus.Entry) (*types.TranscriptionResult, int, error) {
	var lastErr error
	for i, attempt := range attempts {
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, i, ctx.Err()
		}

		log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"name":    attempt.name,
		}).Warn("retrying transcription after corruption error")

		buf, filename, err := attempt.prepare(ctx)
		if err != nil {
			log.WithField("error", err.Error()).Warn("recovery attempt preparation failed")
			lastErr = err
			continue
		}

		result, err := transcribe(ctx, buf, filename)
		if err != nil {
			lastErr = err
			continue
		}
		return result, i + 1, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no recovery attempts available")
	}
	return nil, len(attempts), lastErr
}
