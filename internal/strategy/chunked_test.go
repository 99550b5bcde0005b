package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"recording-insights-go/internal/logger"
	"recording-insights-go/internal/types"
	"recording-insights-go/internal/workerpool"
)

type fakeSplitter struct {
	result *types.SplitResult
	err    error
}

func (f *fakeSplitter) Split(context.Context, []byte, string, int) (*types.SplitResult, error) {
	return f.result, f.err
}

func (f *fakeSplitter) SplitWithOverlap(context.Context, []byte, string, int, float64) (*types.SplitResult, error) {
	return f.result, f.err
}

type fakeTranscriber struct {
	fn func(buf []byte, filename string) (*types.TranscriptionResult, error)
}

func (f *fakeTranscriber) Transcribe(_ context.Context, buf []byte, filename string, _ types.TranscribeOptions) (*types.TranscriptionResult, error) {
	return f.fn(buf, filename)
}

func splitOf(n int) *types.SplitResult {
	chunks := make([]types.AudioChunk, n)
	for i := range chunks {
		chunks[i] = types.AudioChunk{
			Index:     i,
			Buffer:    []byte{byte(i)},
			StartTime: float64(i) * 60,
			Duration:  60,
		}
	}
	return &types.SplitResult{Chunks: chunks, TotalDuration: float64(n) * 60}
}

func TestChunkedReassemblyOrderInvariance(t *testing.T) {
	// All five chunks run in one batch; later chunks finish first. The
	// reassembled text must still be in ascending chunk order.
	client := &fakeTranscriber{fn: func(buf []byte, _ string) (*types.TranscriptionResult, error) {
		idx := int(buf[0])
		time.Sleep(time.Duration(5-idx) * 10 * time.Millisecond)
		return &types.TranscriptionResult{Text: fmt.Sprintf("part%d", idx)}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{result: splitOf(5)}, client, logger.Discard())
	agg, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 1, Concurrency: 5}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "part0 part1 part2 part3 part4"
	if agg.Text != want {
		t.Fatalf("text = %q, want %q", agg.Text, want)
	}
	if agg.Chunks != 5 || agg.SuccessfulChunks != 5 || agg.FailedChunks != 0 {
		t.Fatalf("counts = %d/%d/%d", agg.Chunks, agg.SuccessfulChunks, agg.FailedChunks)
	}
}

func TestChunkedPartialFailureTolerance(t *testing.T) {
	client := &fakeTranscriber{fn: func(buf []byte, _ string) (*types.TranscriptionResult, error) {
		idx := int(buf[0])
		if idx == 2 {
			return nil, errors.New("boom")
		}
		return &types.TranscriptionResult{Text: fmt.Sprintf("part%d", idx)}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{result: splitOf(5)}, client, logger.Discard())
	agg, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 1, Concurrency: 2}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("a chunk failure must not fail the run: %v", err)
	}

	if agg.SuccessfulChunks != 4 || agg.FailedChunks != 1 {
		t.Fatalf("counts = %d success / %d failed, want 4/1", agg.SuccessfulChunks, agg.FailedChunks)
	}
	want := "part0 part1 part3 part4"
	if agg.Text != want {
		t.Fatalf("text = %q, want %q", agg.Text, want)
	}
}

func TestChunkedBoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	client := &fakeTranscriber{fn: func(buf []byte, _ string) (*types.TranscriptionResult, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return &types.TranscriptionResult{Text: "x"}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{result: splitOf(6)}, client, logger.Discard())
	_, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 1, Concurrency: 2}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency %d exceeded configured 2", peak)
	}
}

func TestChunkedSplitFailureFallsBackToDirect(t *testing.T) {
	calls := 0
	client := &fakeTranscriber{fn: func([]byte, string) (*types.TranscriptionResult, error) {
		calls++
		d := 300.0
		return &types.TranscriptionResult{Text: "full transcript", Duration: &d}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{err: errors.New("split exploded")}, client, logger.Discard())
	agg, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 5, Concurrency: 2}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("fallback should have succeeded: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one direct call, got %d", calls)
	}
	if agg.Chunks != 1 || agg.SuccessfulChunks != 1 || agg.Text != "full transcript" {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestChunkedSplitAndFallbackFailure(t *testing.T) {
	client := &fakeTranscriber{fn: func([]byte, string) (*types.TranscriptionResult, error) {
		return nil, errors.New("api down")
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{err: errors.New("split exploded")}, client, logger.Discard())
	if _, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 5, Concurrency: 2}, types.TranscribeOptions{}); err == nil {
		t.Fatal("expected total failure when split and fallback both fail")
	}
}

func TestChunkedSegmentsOffsetByChunkStart(t *testing.T) {
	client := &fakeTranscriber{fn: func(buf []byte, _ string) (*types.TranscriptionResult, error) {
		idx := int(buf[0])
		return &types.TranscriptionResult{
			Text:     fmt.Sprintf("part%d", idx),
			Segments: []types.TranscriptSegment{{Start: 0, End: 30, Text: "seg"}},
		}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{result: splitOf(3)}, client, logger.Discard())
	agg, err := ct.Run(context.Background(), []byte("audio"), "call.mp3",
		Decision{Action: ActionChunked, ChunkMinutes: 1, Concurrency: 3}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(agg.Segments))
	}
	for i, seg := range agg.Segments {
		if seg.Start != float64(i)*60 || seg.End != float64(i)*60+30 {
			t.Fatalf("segment %d span [%v,%v] not offset by chunk start", i, seg.Start, seg.End)
		}
	}
}

func TestRunParallelAllSettled(t *testing.T) {
	pool, err := workerpool.New(3, time.Second, logger.Discard())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}

	client := &fakeTranscriber{fn: func(buf []byte, _ string) (*types.TranscriptionResult, error) {
		idx := int(buf[0])
		if idx == 1 {
			return nil, errors.New("boom")
		}
		return &types.TranscriptionResult{Text: fmt.Sprintf("part%d", idx)}, nil
	}}

	ct := NewChunkedTranscriber(&fakeSplitter{result: splitOf(4)}, client, logger.Discard())
	agg, err := ct.RunParallel(context.Background(), pool, []byte("audio"), "call.mp3",
		Decision{Action: ActionParallel, ChunkMinutes: 1, Concurrency: 3}, types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.SuccessfulChunks != 3 || agg.FailedChunks != 1 {
		t.Fatalf("counts = %d/%d, want 3/1", agg.SuccessfulChunks, agg.FailedChunks)
	}
	if agg.Text != "part0 part2 part3" {
		t.Fatalf("text = %q", agg.Text)
	}
}
