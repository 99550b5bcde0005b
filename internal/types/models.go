package types

// Strategy names a processing profile governing compression and chunking.
type Strategy string

const (
	StrategyFast      Strategy = "fast"
	StrategyStandard  Strategy = "standard"
	StrategyOptimized Strategy = "optimized"
	StrategyChunked   Strategy = "chunked"
	StrategyStreaming Strategy = "streaming"
	StrategyParallel  Strategy = "parallel"
)

// Recording is the externally owned record this core reads and updates.
// It is mutated only by the orchestrator at well-defined pipeline stages;
// callers must not submit concurrent runs for the same ID.
type Recording struct {
	ID                 string `json:"id"`
	FileURL            string `json:"file_url"`
	EnableCoaching     bool   `json:"enable_coaching"`
	Status             string `json:"status"`
	ProcessingProgress int    `json:"processing_progress"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// ProcessingOptions is the caller-supplied per-run configuration.
// AudioDurationSeconds is computed upstream (duration extraction) and
// threaded through on the same struct; nil means unknown, never zero.
type ProcessingOptions struct {
	Strategy             Strategy `json:"processing_strategy"`
	EnableCompression    *bool    `json:"enable_compression,omitempty"`
	ChunkSizeMinutes     int      `json:"chunk_size_minutes,omitempty"`
	ParallelChunks       int      `json:"parallel_chunks,omitempty"`
	AudioDurationSeconds *float64 `json:"audio_duration_seconds,omitempty"`
}

// DurationMinutes returns the known duration in minutes, or nil.
func (o ProcessingOptions) DurationMinutes() *float64 {
	if o.AudioDurationSeconds == nil {
		return nil
	}
	m := *o.AudioDurationSeconds / 60
	return &m
}

// AudioChunk is one time-bounded slice of a source file. Chunks produced by
// a split are contiguous, non-overlapping (except configured streaming
// overlap) and together cover [0, totalDuration).
type AudioChunk struct {
	Index     int     `json:"index"`
	Buffer    []byte  `json:"-"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
}

// SplitResult is the outcome of splitting a buffer into chunks.
type SplitResult struct {
	Chunks        []AudioChunk
	TotalDuration float64
}

// AudioInfo is container metadata extracted by the transcoder.
type AudioInfo struct {
	DurationSeconds float64
	Format          string
	SampleRate      int
	Channels        int
	BitrateKbps     int
}

// CompressionSettings is the target profile for a compression pass.
type CompressionSettings struct {
	BitrateKbps int
	SampleRate  int
	Channels    int
}

// TranscribeOptions are forwarded to the speech-to-text API.
type TranscribeOptions struct {
	ResponseFormat string
	Language       string
	Temperature    float64
}

// TranscriptSegment is one timed span of a transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is one successful speech-to-text response. Failures
// are returned as errors, never as a zero-text result.
type TranscriptionResult struct {
	Text     string              `json:"text"`
	Duration *float64            `json:"duration,omitempty"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// AggregatedTranscript is the reassembled output of a chunked run.
// SuccessfulChunks+FailedChunks == Chunks; failed chunks contribute an
// empty string to Text, not a gap.
type AggregatedTranscript struct {
	Text             string              `json:"text"`
	Duration         *float64            `json:"duration,omitempty"`
	Segments         []TranscriptSegment `json:"segments,omitempty"`
	Chunks           int                 `json:"chunks"`
	SuccessfulChunks int                 `json:"successful_chunks"`
	FailedChunks     int                 `json:"failed_chunks"`
}

// CoachingEvaluation is the parsed coaching payload from the secondary AI.
type CoachingEvaluation struct {
	OverallScore  float64  `json:"overall_score"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	TalkRatio     *float64 `json:"talk_ratio,omitempty"`
	NextSteps     string   `json:"next_steps,omitempty"`
	CallObjective string   `json:"call_objective,omitempty"`
}

// ProcessingMetadata records how a run went, persisted alongside results.
type ProcessingMetadata struct {
	Strategy            Strategy `json:"strategy"`
	CompressionApplied  bool     `json:"compression_applied"`
	CompressionRatio    float64  `json:"compression_ratio,omitempty"`
	Chunks              int      `json:"chunks,omitempty"`
	SuccessfulChunks    int      `json:"successful_chunks,omitempty"`
	FailedChunks        int      `json:"failed_chunks,omitempty"`
	RecoveryAttempts    int      `json:"recovery_attempts,omitempty"`
	SummarySuccess      bool     `json:"summary_success"`
	SummaryRateLimited  bool     `json:"summary_rate_limited"`
	CoachingSuccess     bool     `json:"coaching_success"`
	CoachingRateLimited bool     `json:"coaching_rate_limited"`
}

// Results is the persisted outcome of a completed run.
type Results struct {
	Transcript         string              `json:"transcript"`
	Summary            string              `json:"summary,omitempty"`
	Coaching           *CoachingEvaluation `json:"coaching,omitempty"`
	Duration           *float64            `json:"duration,omitempty"`
	ProcessingMetadata ProcessingMetadata  `json:"processing_metadata"`
}

// ProcessingResult is the orchestrator's terminal output. PartialSuccess is
// set when transcription succeeded but no secondary AI output was produced;
// RateLimited only when every enabled secondary analysis was rate limited.
type ProcessingResult struct {
	Success        bool     `json:"success"`
	Results        *Results `json:"results,omitempty"`
	PartialSuccess bool     `json:"partial_success"`
	RateLimited    bool     `json:"rate_limited"`
	Error          string   `json:"error,omitempty"`
}
