package strategy

import (
	"path/filepath"
	"strings"

	"recording-insights-go/internal/types"
)

// Action is how the transcription call will be made.
type Action int

const (
	ActionDirect Action = iota
	ActionChunked
	ActionStreaming
	ActionParallel
)

func (a Action) String() string {
	switch a {
	case ActionDirect:
		return "direct"
	case ActionChunked:
		return "chunked"
	case ActionStreaming:
		return "streaming"
	case ActionParallel:
		return "parallel"
	}
	return "unknown"
}

// Decision is the selector output: the path to take and its chunk tunables.
type Decision struct {
	Action           Action
	ChunkMinutes     int
	Concurrency      int
	ForcedByDuration bool
}

// maxDirectMinutes is the hard ceiling on a single transcription request;
// the API errors on anything longer, so chunking is forced above it no
// matter what strategy was asked for.
const maxDirectMinutes = 15

// chunkRule is one row of the per-strategy decision table.
type chunkRule struct {
	sizeThresholdMB      float64 // 0 disables the size trigger
	durationThresholdMin float64 // 0 disables the duration trigger
	alwaysChunk          bool
	chunkMinutes         int  // fixed chunk size; 0 = caller-specified or default
	concurrency          int  // fixed concurrency; 0 = caller-specified or default
	defaultChunkMinutes  int
	defaultConcurrency   int
}

var chunkRules = map[types.Strategy]chunkRule{
	types.StrategyFast: {
		durationThresholdMin: 10,
		chunkMinutes:         5,
		concurrency:          2,
	},
	types.StrategyStandard: {
		sizeThresholdMB:      25,
		durationThresholdMin: 10,
		chunkMinutes:         5,
		concurrency:          2,
	},
	types.StrategyOptimized: {
		sizeThresholdMB:      15,
		durationThresholdMin: 8,
		defaultChunkMinutes:  5,
		defaultConcurrency:   3,
	},
	types.StrategyChunked: {
		alwaysChunk:         true,
		defaultChunkMinutes: 5,
		defaultConcurrency:  3,
	},
}

var defaultRule = chunkRule{
	sizeThresholdMB:      25,
	durationThresholdMin: 10,
	chunkMinutes:         5,
	concurrency:          3,
}

// Select decides how to transcribe a file of the given size and duration.
// durationMinutes is nil when duration extraction failed; unknown duration
// never triggers a duration rule.
func Select(fileSizeMB float64, durationMinutes *float64, opts types.ProcessingOptions) Decision {
	// Hard ceiling first, regardless of the named strategy.
	if durationMinutes != nil && *durationMinutes > maxDirectMinutes {
		return Decision{
			Action:           ActionChunked,
			ChunkMinutes:     orDefault(opts.ChunkSizeMinutes, 5),
			Concurrency:      orDefault(opts.ParallelChunks, 3),
			ForcedByDuration: true,
		}
	}

	switch opts.Strategy {
	case types.StrategyStreaming:
		if durationMinutes != nil && *durationMinutes > 12 {
			return Decision{Action: ActionChunked, ChunkMinutes: 3, Concurrency: 2}
		}
		return Decision{Action: ActionStreaming, ChunkMinutes: 3, Concurrency: 2}

	case types.StrategyParallel:
		return Decision{
			Action:       ActionParallel,
			ChunkMinutes: orDefault(opts.ChunkSizeMinutes, 5),
			Concurrency:  orDefault(opts.ParallelChunks, 4),
		}
	}

	rule, ok := chunkRules[opts.Strategy]
	if !ok {
		rule = defaultRule
	}

	triggered := rule.alwaysChunk ||
		(rule.sizeThresholdMB > 0 && fileSizeMB > rule.sizeThresholdMB) ||
		(rule.durationThresholdMin > 0 && durationMinutes != nil && *durationMinutes > rule.durationThresholdMin)
	if !triggered {
		return Decision{Action: ActionDirect}
	}

	chunkMinutes := rule.chunkMinutes
	if chunkMinutes == 0 {
		chunkMinutes = orDefault(opts.ChunkSizeMinutes, rule.defaultChunkMinutes)
	}
	concurrency := rule.concurrency
	if concurrency == 0 {
		concurrency = orDefault(opts.ParallelChunks, rule.defaultConcurrency)
	}
	return Decision{Action: ActionChunked, ChunkMinutes: chunkMinutes, Concurrency: concurrency}
}

// compression thresholds per strategy, in MB; files above the threshold or
// not already MP3 get compressed.
var compressThresholdMB = map[types.Strategy]float64{
	types.StrategyFast:      15,
	types.StrategyStandard:  8,
	types.StrategyOptimized: 5,
	types.StrategyChunked:   5,
}

const defaultCompressThresholdMB = 10

// ShouldCompress decides whether to run a compression pass before
// transcription. An explicit EnableCompression override always wins.
func ShouldCompress(fileSizeMB float64, filename string, opts types.ProcessingOptions) bool {
	if opts.EnableCompression != nil {
		return *opts.EnableCompression
	}

	threshold, ok := compressThresholdMB[opts.Strategy]
	if !ok {
		threshold = defaultCompressThresholdMB
	}

	isMP3 := strings.EqualFold(filepath.Ext(filename), ".mp3")
	return fileSizeMB > threshold || !isMP3
}

// CompressionFor returns the strategy-tiered target profile. Optimized and
// chunked runs trade quality for upload size.
func CompressionFor(s types.Strategy) types.CompressionSettings {
	switch s {
	case types.StrategyOptimized, types.StrategyChunked:
		return types.CompressionSettings{BitrateKbps: 96, SampleRate: 16000, Channels: 1}
	default:
		return types.CompressionSettings{BitrateKbps: 128, SampleRate: 16000, Channels: 1}
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
