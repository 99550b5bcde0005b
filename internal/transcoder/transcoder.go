package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

// ErrDecode indicates the input bytes are not a recognizable media container.
var ErrDecode = errors.New("unrecognizable media container")

// Transcoder shells out to ffmpeg/ffprobe for probing, compression and
// time-based splitting. All operations work on in-memory buffers and stage
// them through per-call temp files that are removed before returning.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	log         *logrus.Entry
}

func New(tempDir string, log *logrus.Entry) *Transcoder {
	return &Transcoder{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		tempDir:     tempDir,
		log:         log,
	}
}

// Probe extracts duration and format metadata. A warm-up call with a dummy
// buffer returns ErrDecode; it must never panic or kill the process.
func (t *Transcoder) Probe(ctx context.Context, buf []byte, filename string) (*types.AudioInfo, error) {
	if len(buf) < 16 {
		return nil, ErrDecode
	}

	path, cleanup, err := t.stage(buf, filename)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,format_name,bit_rate",
		"-show_entries", "stream=sample_rate,channels",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %s", ErrDecode, strings.TrimSpace(stderr.String()))
	}

	var parsed struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
			BitRate    string `json:"bit_rate"`
		} `json:"format"`
		Streams []struct {
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrDecode, err)
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: no duration in container", ErrDecode)
	}

	info := &types.AudioInfo{
		DurationSeconds: duration,
		Format:          parsed.Format.FormatName,
	}
	if br, err := strconv.Atoi(parsed.Format.BitRate); err == nil {
		info.BitrateKbps = br / 1000
	}
	if len(parsed.Streams) > 0 {
		info.Channels = parsed.Streams[0].Channels
		if sr, err := strconv.Atoi(parsed.Streams[0].SampleRate); err == nil {
			info.SampleRate = sr
		}
	}
	return info, nil
}

// Compress re-encodes the buffer to MP3 at the given profile and returns the
// compressed bytes plus the achieved ratio. Callers fall back to the
// original buffer on error.
func (t *Transcoder) Compress(ctx context.Context, buf []byte, filename string, settings types.CompressionSettings) ([]byte, float64, error) {
	inPath, cleanupIn, err := t.stage(buf, filename)
	if err != nil {
		return nil, 0, err
	}
	defer cleanupIn()

	outPath := filepath.Join(t.tempDir, fmt.Sprintf("compress_%s.mp3", uuid.New().String()))
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-i", inPath,
		"-b:a", fmt.Sprintf("%dk", settings.BitrateKbps),
		"-ar", strconv.Itoa(settings.SampleRate),
		"-ac", strconv.Itoa(settings.Channels),
		"-codec:a", "libmp3lame",
		"-y",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg compress: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, 0, fmt.Errorf("read compressed output: %w", err)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("ffmpeg produced empty output")
	}

	ratio := float64(len(buf)) / float64(len(out))
	t.log.WithFields(logrus.Fields{
		"original_bytes":   len(buf),
		"compressed_bytes": len(out),
		"ratio":            fmt.Sprintf("%.2f", ratio),
	}).Debug("audio compressed")
	return out, ratio, nil
}

// ConvertToMP3 re-encodes with a plain quality-preserving profile. Used by
// the corruption recovery path.
func (t *Transcoder) ConvertToMP3(ctx context.Context, buf []byte, filename string) ([]byte, error) {
	out, _, err := t.Compress(ctx, buf, filename, types.CompressionSettings{
		BitrateKbps: 128,
		SampleRate:  44100,
		Channels:    2,
	})
	return out, err
}

// Split cuts the buffer into chunks of roughly chunkMinutes each. The
// returned chunks are contiguous, non-overlapping and cover the full
// duration (the last chunk picks up the remainder).
func (t *Transcoder) Split(ctx context.Context, buf []byte, filename string, chunkMinutes int) (*types.SplitResult, error) {
	return t.split(ctx, buf, filename, chunkMinutes, 0)
}

// SplitWithOverlap is Split with each chunk starting overlapSeconds before
// its boundary, for the streaming path where words at chunk edges matter.
func (t *Transcoder) SplitWithOverlap(ctx context.Context, buf []byte, filename string, chunkMinutes int, overlapSeconds float64) (*types.SplitResult, error) {
	return t.split(ctx, buf, filename, chunkMinutes, overlapSeconds)
}

func (t *Transcoder) split(ctx context.Context, buf []byte, filename string, chunkMinutes int, overlapSeconds float64) (*types.SplitResult, error) {
	info, err := t.Probe(ctx, buf, filename)
	if err != nil {
		return nil, fmt.Errorf("probe before split: %w", err)
	}

	plan := PlanChunks(info.DurationSeconds, float64(chunkMinutes)*60, overlapSeconds)
	if len(plan) == 1 {
		// Single chunk: no transcode needed, hand back the buffer as-is.
		return &types.SplitResult{
			Chunks: []types.AudioChunk{{
				Index:     0,
				Buffer:    buf,
				StartTime: 0,
				Duration:  info.DurationSeconds,
			}},
			TotalDuration: info.DurationSeconds,
		}, nil
	}

	inPath, cleanup, err := t.stage(buf, filename)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = "mp3"
	}

	chunks := make([]types.AudioChunk, 0, len(plan))
	for _, span := range plan {
		outPath := filepath.Join(t.tempDir, fmt.Sprintf("chunk_%d_%s.%s", span.Index, uuid.New().String(), ext))

		cmd := exec.CommandContext(ctx, t.ffmpegPath,
			"-i", inPath,
			"-ss", fmt.Sprintf("%.3f", span.Start),
			"-t", fmt.Sprintf("%.3f", span.Duration),
			"-c", "copy",
			"-y",
			outPath,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			os.Remove(outPath)
			return nil, fmt.Errorf("ffmpeg split chunk %d: %w: %s", span.Index, err, strings.TrimSpace(stderr.String()))
		}

		data, err := os.ReadFile(outPath)
		os.Remove(outPath)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", span.Index, err)
		}

		chunks = append(chunks, types.AudioChunk{
			Index:     span.Index,
			Buffer:    data,
			StartTime: span.Start,
			Duration:  span.Duration,
		})
	}

	t.log.WithFields(logrus.Fields{
		"chunks":         len(chunks),
		"total_duration": info.DurationSeconds,
	}).Info("audio split completed")

	return &types.SplitResult{Chunks: chunks, TotalDuration: info.DurationSeconds}, nil
}

// stage writes the buffer to a temp file preserving the extension so ffmpeg
// can detect the container. The returned cleanup removes it.
func (t *Transcoder) stage(buf []byte, filename string) (string, func(), error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(t.tempDir, fmt.Sprintf("stage_%s%s", uuid.New().String(), ext))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", nil, fmt.Errorf("write staging file: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}
