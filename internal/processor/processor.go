package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/ai"
	"recording-insights-go/internal/progress"
	"recording-insights-go/internal/storage"
	"recording-insights-go/internal/strategy"
	"recording-insights-go/internal/transcription"
	"recording-insights-go/internal/types"
	"recording-insights-go/internal/workerpool"
)

// minTranscriptChars is the smallest trimmed transcript accepted as a real
// result; anything shorter is treated as a transcription failure.
const minTranscriptChars = 10

// RecordStore is the persistence collaborator.
type RecordStore interface {
	GetRecording(id string) (*types.Recording, error)
	SaveResults(id string, results *types.Results) error
}

// Downloader fetches recording blobs from object storage.
type Downloader interface {
	DownloadObject(ctx context.Context, bucket, key string) (*storage.Download, error)
}

// Transcoder is the transcoding collaborator.
type Transcoder interface {
	Probe(ctx context.Context, buf []byte, filename string) (*types.AudioInfo, error)
	Compress(ctx context.Context, buf []byte, filename string, settings types.CompressionSettings) ([]byte, float64, error)
	ConvertToMP3(ctx context.Context, buf []byte, filename string) ([]byte, error)
	Split(ctx context.Context, buf []byte, filename string, chunkMinutes int) (*types.SplitResult, error)
	SplitWithOverlap(ctx context.Context, buf []byte, filename string, chunkMinutes int, overlapSeconds float64) (*types.SplitResult, error)
}

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, buf []byte, filename string, opts types.TranscribeOptions) (*types.TranscriptionResult, error)
}

// Analyzer is the secondary-AI collaborator.
type Analyzer interface {
	GenerateSummary(ctx context.Context, transcript string) (string, error)
	GenerateCoaching(ctx context.Context, transcript string) (*types.CoachingEvaluation, error)
}

// Deps are the Processor's injected collaborators. Pool may be nil; that
// only disables the parallel strategy path.
type Deps struct {
	Store       RecordStore
	Downloader  Downloader
	Transcoder  Transcoder
	Transcriber Transcriber
	Analyzer    Analyzer
	Pool        *workerpool.Pool
	Log         *logrus.Entry
	RetryDelay  time.Duration // corruption-retry stabilization delay
}

// Processor runs the recording pipeline: download, validate, compress,
// transcribe (with corruption recovery), secondary analyses, duration
// reconciliation, persistence. One Processor serves many recordings, but
// callers must not run the same recording id concurrently.
type Processor struct {
	deps Deps
	log  *logrus.Entry
}

func New(deps Deps) *Processor {
	if deps.RetryDelay == 0 {
		deps.RetryDelay = 2 * time.Second
	}
	return &Processor{deps: deps, log: deps.Log}
}

// run holds per-invocation state, most importantly the temp files that must
// be deleted on every exit path.
type run struct {
	recording *types.Recording
	opts      types.ProcessingOptions
	tracker   progress.Tracker
	log       *logrus.Entry

	filename         string
	buffer           []byte
	originalBuffer   []byte
	originalFilename string
	fileSizeMB       float64
	audioDuration    *float64
	tempFiles        []string

	metadata types.ProcessingMetadata
}

func (r *run) registerTemp(path string) {
	if path != "" {
		r.tempFiles = append(r.tempFiles, path)
	}
}

// cleanup removes every registered temp file exactly once.
func (r *run) cleanup() {
	for _, path := range r.tempFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.WithFields(logrus.Fields{
				"path":  path,
				"error": err.Error(),
			}).Warn("temp file cleanup failed")
		}
	}
	r.tempFiles = nil
}

// Process executes the full pipeline for one recording. Fatal errors are
// caught here, reported through the tracker and returned as a failed
// result; they never propagate as panics or raw errors to the caller.
func (p *Processor) Process(ctx context.Context, recordingID string, opts types.ProcessingOptions, tracker progress.Tracker) *types.ProcessingResult {
	if opts.Strategy == "" {
		opts.Strategy = types.StrategyStandard
	}

	r := &run{
		opts:    opts,
		tracker: tracker,
		log:     p.log.WithField("recording_id", recordingID),
		metadata: types.ProcessingMetadata{
			Strategy: opts.Strategy,
		},
	}
	defer r.cleanup()

	result, err := p.process(ctx, recordingID, r)
	if err != nil {
		r.log.WithField("error", err.Error()).Error("recording processing failed")
		if terr := tracker.Fail(ctx, err); terr != nil {
			r.log.WithField("error", terr.Error()).Warn("failure report failed")
		}
		return &types.ProcessingResult{Success: false, Error: err.Error()}
	}
	return result
}

func (p *Processor) process(ctx context.Context, recordingID string, r *run) (*types.ProcessingResult, error) {
	// --- initializing ---
	p.track(ctx, r, "initializing", 0, "fetching recording")
	rec, err := p.deps.Store.GetRecording(recordingID)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	if rec.FileURL == "" {
		return nil, fmt.Errorf("recording %s has no file URL", recordingID)
	}
	r.recording = rec

	// --- downloading ---
	p.track(ctx, r, "downloading", 10, "downloading audio")
	bucket, key, err := storage.ResolveStoragePath(rec.FileURL)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	dl, err := p.deps.Downloader.DownloadObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	r.registerTemp(dl.TempPath)
	r.buffer = dl.Buffer
	r.originalBuffer = dl.Buffer
	r.filename = path.Base(key)
	r.originalFilename = r.filename
	r.fileSizeMB = float64(dl.Size) / (1024 * 1024)

	// --- preprocessing ---
	p.track(ctx, r, "preprocessing", 25, "validating and preparing audio")
	if err := validateAudioFormat(r.buffer); err != nil {
		return nil, fmt.Errorf("invalid audio file: %w", err)
	}

	// Warm-up probe with a dummy buffer; some ffmpeg builds do lazy
	// initialization and a failure here must not take the pipeline down.
	if _, err := p.deps.Transcoder.Probe(ctx, []byte{0}, "warmup.bin"); err != nil {
		r.log.Debug("transcoder warm-up probe failed (ignored)")
	}

	p.compress(ctx, r)

	// --- duration extraction ---
	p.track(ctx, r, "preprocessing", 35, "extracting audio duration")
	if info, err := p.deps.Transcoder.Probe(ctx, r.buffer, r.filename); err != nil {
		r.log.WithField("error", err.Error()).Warn("duration extraction failed, continuing without duration")
		r.audioDuration = nil
	} else {
		d := info.DurationSeconds
		r.audioDuration = &d
	}
	r.opts.AudioDurationSeconds = r.audioDuration

	// --- transcribing ---
	p.track(ctx, r, "transcribing", 45, "transcribing audio")
	agg, err := p.transcribe(ctx, r)
	if err != nil {
		return nil, err
	}
	transcript := strings.TrimSpace(agg.Text)
	if len(transcript) < minTranscriptChars {
		return nil, fmt.Errorf("transcript empty or too short (%d chars)", len(transcript))
	}
	r.metadata.Chunks = agg.Chunks
	r.metadata.SuccessfulChunks = agg.SuccessfulChunks
	r.metadata.FailedChunks = agg.FailedChunks

	// --- analyzing ---
	p.track(ctx, r, "analyzing", 80, "running summary and coaching analyses")
	summary, coaching := p.analyze(ctx, r, transcript)

	// --- finalizing ---
	p.track(ctx, r, "finalizing", 95, "reconciling duration and saving results")
	duration := p.reconcileDuration(ctx, r, agg)

	results := &types.Results{
		Transcript:         transcript,
		Summary:            summary,
		Coaching:           coaching,
		Duration:           duration,
		ProcessingMetadata: r.metadata,
	}
	if err := p.deps.Store.SaveResults(recordingID, results); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}

	hasAnyAI := summary != "" || coaching != nil
	allRateLimited := r.metadata.SummaryRateLimited &&
		(!rec.EnableCoaching || r.metadata.CoachingRateLimited)

	message := "processing completed"
	switch {
	case !hasAnyAI && allRateLimited:
		message = "processing completed; AI analyses rate limited"
	case !hasAnyAI:
		message = "processing completed; AI analyses unavailable"
	}
	if err := r.tracker.Complete(ctx, results, message); err != nil {
		r.log.WithField("error", err.Error()).Warn("completion report failed")
	}

	return &types.ProcessingResult{
		Success:        true,
		Results:        results,
		PartialSuccess: !hasAnyAI,
		RateLimited:    !hasAnyAI && allRateLimited,
	}, nil
}

// compress applies the strategy's compression decision. Failure is a
// degraded path: keep the original buffer and move on.
func (p *Processor) compress(ctx context.Context, r *run) {
	if !strategy.ShouldCompress(r.fileSizeMB, r.filename, r.opts) {
		return
	}
	settings := strategy.CompressionFor(r.opts.Strategy)
	compressed, ratio, err := p.deps.Transcoder.Compress(ctx, r.buffer, r.filename, settings)
	if err != nil {
		r.log.WithField("error", err.Error()).Warn("compression failed, continuing with original audio")
		return
	}
	r.buffer = compressed
	r.filename = strings.TrimSuffix(r.filename, path.Ext(r.filename)) + ".mp3"
	r.fileSizeMB = float64(len(compressed)) / (1024 * 1024)
	r.metadata.CompressionApplied = true
	r.metadata.CompressionRatio = ratio
}

// transcribe dispatches on the selector decision and, on a corruption
// error, walks the recovery sequence before giving up.
func (p *Processor) transcribe(ctx context.Context, r *run) (*types.AggregatedTranscript, error) {
	dec := strategy.Select(r.fileSizeMB, r.opts.DurationMinutes(), r.opts)
	if dec.Action == strategy.ActionParallel && p.deps.Pool == nil {
		r.log.Warn("worker pool unavailable, falling back to chunked strategy")
		dec.Action = strategy.ActionChunked
	}
	r.log.WithFields(logrus.Fields{
		"action":        dec.Action.String(),
		"chunk_minutes": dec.ChunkMinutes,
		"concurrency":   dec.Concurrency,
		"forced":        dec.ForcedByDuration,
	}).Info("transcription strategy selected")

	tOpts := types.TranscribeOptions{ResponseFormat: "verbose_json"}

	agg, err := p.dispatch(ctx, r, dec, tOpts)
	if err == nil {
		return agg, nil
	}
	if !transcription.IsCorruptedOrUnsupported(err) {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	// Corruption recovery: original uncompressed buffer first, then a
	// fresh MP3 re-encode of it.
	attempts := []recoveryAttempt{
		{
			name: "original buffer",
			prepare: func(context.Context) ([]byte, string, error) {
				return r.originalBuffer, r.originalFilename, nil
			},
		},
		{
			name: "mp3 conversion",
			prepare: func(ctx context.Context) ([]byte, string, error) {
				converted, err := p.deps.Transcoder.ConvertToMP3(ctx, r.originalBuffer, r.originalFilename)
				if err != nil {
					return nil, "", fmt.Errorf("mp3 conversion: %w", err)
				}
				name := strings.TrimSuffix(r.originalFilename, path.Ext(r.originalFilename)) + ".mp3"
				return converted, name, nil
			},
		},
	}
	result, tried, rerr := runRecovery(ctx, attempts,
		func(ctx context.Context, buf []byte, filename string) (*types.TranscriptionResult, error) {
			return p.deps.Transcriber.Transcribe(ctx, buf, filename, tOpts)
		},
		p.deps.RetryDelay, r.log)
	r.metadata.RecoveryAttempts = tried
	if rerr != nil {
		return nil, fmt.Errorf("transcription failed after %d recovery attempts: %w", tried, rerr)
	}
	return &types.AggregatedTranscript{
		Text:             result.Text,
		Duration:         result.Duration,
		Segments:         result.Segments,
		Chunks:           1,
		SuccessfulChunks: 1,
	}, nil
}

func (p *Processor) dispatch(ctx context.Context, r *run, dec strategy.Decision, tOpts types.TranscribeOptions) (*types.AggregatedTranscript, error) {
	switch dec.Action {
	case strategy.ActionDirect:
		result, err := p.deps.Transcriber.Transcribe(ctx, r.buffer, r.filename, tOpts)
		if err != nil {
			return nil, err
		}
		return &types.AggregatedTranscript{
			Text:             result.Text,
			Duration:         result.Duration,
			Segments:         result.Segments,
			Chunks:           1,
			SuccessfulChunks: 1,
		}, nil

	default:
		chunked := strategy.NewChunkedTranscriber(p.deps.Transcoder, p.deps.Transcriber, r.log)
		chunked.OnChunk = func(completed, total int) {
			// Chunk progress spans 45-75%.
			percent := 45 + (30*completed)/total
			p.track(ctx, r, "transcribing", percent,
				fmt.Sprintf("transcribed %d/%d chunks", completed, total))
		}
		if dec.Action == strategy.ActionParallel {
			return chunked.RunParallel(ctx, p.deps.Pool, r.buffer, r.filename, dec, tOpts)
		}
		return chunked.Run(ctx, r.buffer, r.filename, dec, tOpts)
	}
}

// analyze runs the secondary AI calls. Each outcome is tracked
// independently; nothing here is fatal.
func (p *Processor) analyze(ctx context.Context, r *run, transcript string) (string, *types.CoachingEvaluation) {
	var summary string
	s, err := p.deps.Analyzer.GenerateSummary(ctx, transcript)
	switch {
	case err == nil:
		summary = s
		r.metadata.SummarySuccess = true
	case errors.Is(err, ai.ErrRateLimited):
		r.metadata.SummaryRateLimited = true
		r.log.Warn("summary generation rate limited")
	default:
		r.log.WithField("error", err.Error()).Warn("summary generation failed")
	}

	var coaching *types.CoachingEvaluation
	if r.recording.EnableCoaching {
		c, err := p.deps.Analyzer.GenerateCoaching(ctx, transcript)
		switch {
		case err == nil:
			coaching = c
			r.metadata.CoachingSuccess = true
		case errors.Is(err, ai.ErrRateLimited):
			r.metadata.CoachingRateLimited = true
			r.log.Warn("coaching evaluation rate limited")
		case errors.Is(err, ai.ErrInvalidCoachingJSON):
			r.log.WithField("error", err.Error()).Warn("coaching response unparseable, treating as absent")
		default:
			r.log.WithField("error", err.Error()).Warn("coaching evaluation failed")
		}
	}
	return summary, coaching
}

// reconcileDuration picks the final duration: transcription-reported value,
// then the last segment's end, then the pre-extracted probe value, then a
// last-resort re-probe of the working buffer.
func (p *Processor) reconcileDuration(ctx context.Context, r *run, agg *types.AggregatedTranscript) *float64 {
	if agg.Duration != nil && *agg.Duration > 0 {
		return agg.Duration
	}
	if n := len(agg.Segments); n > 0 {
		end := agg.Segments[n-1].End
		if end > 0 {
			return &end
		}
	}
	if r.audioDuration != nil {
		return r.audioDuration
	}
	if info, err := p.deps.Transcoder.Probe(ctx, r.buffer, r.filename); err == nil {
		d := info.DurationSeconds
		return &d
	}
	return nil
}

// track reports a progress event; tracker errors are logged, never fatal.
func (p *Processor) track(ctx context.Context, r *run, stage string, percent int, message string) {
	if err := r.tracker.Update(ctx, stage, percent, message); err != nil {
		r.log.WithFields(logrus.Fields{
			"stage": stage,
			"error": err.Error(),
		}).Warn("progress update failed")
	}
}
