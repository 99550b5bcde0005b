package strategy

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
	"recording-insights-go/internal/workerpool"
)

// streamingOverlapSeconds is how far each streaming chunk reaches back past
// its boundary so words at the cut are captured in at least one chunk.
const streamingOverlapSeconds = 2

// Splitter is the slice of the transcoder the chunked path needs.
type Splitter interface {
	Split(ctx context.Context, buf []byte, filename string, chunkMinutes int) (*types.SplitResult, error)
	SplitWithOverlap(ctx context.Context, buf []byte, filename string, chunkMinutes int, overlapSeconds float64) (*types.SplitResult, error)
}

// Transcriber is a single-shot speech-to-text call.
type Transcriber interface {
	Transcribe(ctx context.Context, buf []byte, filename string, opts types.TranscribeOptions) (*types.TranscriptionResult, error)
}

// ChunkedTranscriber splits long audio, transcribes the pieces under
// bounded concurrency and reassembles the transcript in chunk order.
//
// A chunk's failure never aborts the run: it contributes an empty string
// and bumps FailedChunks. Total failure happens only when the split fails
// and the direct single-call fallback also fails.
type ChunkedTranscriber struct {
	transcoder Splitter
	client     Transcriber
	log        *logrus.Entry

	// OnChunk, when set, is called after each chunk settles with the number
	// of settled chunks and the total. Used for progress reporting.
	OnChunk func(completed, total int)
}

func NewChunkedTranscriber(transcoder Splitter, client Transcriber, log *logrus.Entry) *ChunkedTranscriber {
	return &ChunkedTranscriber{transcoder: transcoder, client: client, log: log}
}

// Run executes the decision's chunked or streaming path.
func (c *ChunkedTranscriber) Run(ctx context.Context, buf []byte, filename string, dec Decision, opts types.TranscribeOptions) (*types.AggregatedTranscript, error) {
	var split *types.SplitResult
	var err error
	if dec.Action == ActionStreaming {
		split, err = c.transcoder.SplitWithOverlap(ctx, buf, filename, dec.ChunkMinutes, streamingOverlapSeconds)
	} else {
		split, err = c.transcoder.Split(ctx, buf, filename, dec.ChunkMinutes)
	}
	if err != nil {
		c.log.WithField("error", err.Error()).Warn("audio split failed, falling back to direct transcription")
		return c.direct(ctx, buf, filename, opts)
	}

	outcomes := c.transcribeBatches(ctx, split.Chunks, filename, dec.Concurrency, opts)
	return aggregate(outcomes, split.TotalDuration), nil
}

// RunParallel is the worker-pool variant: both the split and every chunk
// transcription run as pool tasks, awaited with all-settled semantics.
func (c *ChunkedTranscriber) RunParallel(ctx context.Context, pool *workerpool.Pool, buf []byte, filename string, dec Decision, opts types.TranscribeOptions) (*types.AggregatedTranscript, error) {
	splitFuture := pool.Submit(ctx, "split_audio", func(taskCtx context.Context) (any, error) {
		return c.transcoder.Split(taskCtx, buf, filename, dec.ChunkMinutes)
	})
	v, err := splitFuture.Wait(ctx)
	if err != nil {
		c.log.WithField("error", err.Error()).Warn("pooled audio split failed, falling back to direct transcription")
		return c.direct(ctx, buf, filename, opts)
	}
	split := v.(*types.SplitResult)

	futures := make([]*workerpool.Future, len(split.Chunks))
	for i, chunk := range split.Chunks {
		futures[i] = pool.Submit(ctx, fmt.Sprintf("transcribe_chunk_%d", chunk.Index), func(taskCtx context.Context) (any, error) {
			return c.client.Transcribe(taskCtx, chunk.Buffer, chunkFilename(filename, chunk.Index), opts)
		})
	}

	outcomes := make([]chunkOutcome, len(futures))
	for i, settled := range workerpool.WaitAll(ctx, futures) {
		out := chunkOutcome{chunk: split.Chunks[i], err: settled.Err}
		if settled.Err == nil {
			out.result = settled.Value.(*types.TranscriptionResult)
		}
		outcomes[i] = out
		if c.OnChunk != nil {
			c.OnChunk(i+1, len(futures))
		}
	}
	return aggregate(outcomes, split.TotalDuration), nil
}

// direct is the single-call fallback when splitting is impossible.
func (c *ChunkedTranscriber) direct(ctx context.Context, buf []byte, filename string, opts types.TranscribeOptions) (*types.AggregatedTranscript, error) {
	result, err := c.client.Transcribe(ctx, buf, filename, opts)
	if err != nil {
		return nil, fmt.Errorf("direct transcription fallback: %w", err)
	}
	agg := &types.AggregatedTranscript{
		Text:             result.Text,
		Duration:         result.Duration,
		Segments:         result.Segments,
		Chunks:           1,
		SuccessfulChunks: 1,
	}
	return agg, nil
}

type chunkOutcome struct {
	chunk  types.AudioChunk
	result *types.TranscriptionResult
	err    error
}

// transcribeBatches runs chunks in batches of size concurrency; batch N+1
// does not start until batch N has fully settled, bounding peak in-flight
// API calls.
func (c *ChunkedTranscriber) transcribeBatches(ctx context.Context, chunks []types.AudioChunk, filename string, concurrency int, opts types.TranscribeOptions) []chunkOutcome {
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	outcomes := make([]chunkOutcome, 0, len(chunks))

	for start := 0; start < len(chunks); start += concurrency {
		end := start + concurrency
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for _, chunk := range chunks[start:end] {
			wg.Add(1)
			go func(chunk types.AudioChunk) {
				defer wg.Done()
				result, err := c.client.Transcribe(ctx, chunk.Buffer, chunkFilename(filename, chunk.Index), opts)
				if err != nil {
					c.log.WithFields(logrus.Fields{
						"chunk": chunk.Index,
						"error": err.Error(),
					}).Warn("chunk transcription failed")
				}

				mu.Lock()
				outcomes = append(outcomes, chunkOutcome{chunk: chunk, result: result, err: err})
				done := len(outcomes)
				mu.Unlock()
				if c.OnChunk != nil {
					c.OnChunk(done, len(chunks))
				}
			}(chunk)
		}
		wg.Wait()
	}
	return outcomes
}

// aggregate reassembles settled chunks into one transcript, in ascending
// chunk order regardless of completion order.
func aggregate(outcomes []chunkOutcome, totalDuration float64) *types.AggregatedTranscript {
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].chunk.Index < outcomes[j].chunk.Index
	})

	agg := &types.AggregatedTranscript{Chunks: len(outcomes)}
	var parts []string
	for _, out := range outcomes {
		if out.err != nil || out.result == nil {
			agg.FailedChunks++
			continue
		}
		agg.SuccessfulChunks++
		if text := strings.TrimSpace(out.result.Text); text != "" {
			parts = append(parts, text)
		}
		for _, seg := range out.result.Segments {
			agg.Segments = append(agg.Segments, types.TranscriptSegment{
				Start: seg.Start + out.chunk.StartTime,
				End:   seg.End + out.chunk.StartTime,
				Text:  seg.Text,
			})
		}
	}
	agg.Text = strings.Join(parts, " ")
	if totalDuration > 0 {
		d := totalDuration
		agg.Duration = &d
	}
	return agg
}

func chunkFilename(filename string, index int) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	if ext == "" {
		ext = ".mp3"
	}
	return fmt.Sprintf("%s_chunk%d%s", base, index, ext)
}
