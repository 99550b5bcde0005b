package processor

import (
	"context"
	"sync"

	"recording-insights-go/internal/progress"
	"recording-insights-go/internal/types"
)

// BatchItem is one recording to process in a batch run.
type BatchItem struct {
	RecordingID string
	Options     types.ProcessingOptions
}

// BatchOutcome pairs a recording with its terminal result.
type BatchOutcome struct {
	RecordingID string
	Result      *types.ProcessingResult
}

// TrackerFactory builds the progress tracker for one recording in a batch.
type TrackerFactory func(recordingID string) progress.Tracker

// ProcessBatch runs several recordings with bounded concurrency, using the
// same batch-sequential pattern as chunk transcription: the next wave does
// not start until the current one settles. One recording's failure never
// blocks or cancels the others. Outcomes come back in input order.
func (p *Processor) ProcessBatch(ctx context.Context, items []BatchItem, concurrency int, trackers TrackerFactory) []BatchOutcome {
	if concurrency < 1 {
		concurrency = 3
	}

	outcomes := make([]BatchOutcome, len(items))
	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				item := items[i]
				outcomes[i] = BatchOutcome{
					RecordingID: item.RecordingID,
					Result:      p.Process(ctx, item.RecordingID, item.Options, trackers(item.RecordingID)),
				}
			}(i)
		}
		wg.Wait()
	}
	return outcomes
}
