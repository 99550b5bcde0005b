package progress

import (
	"context"

	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

// Tracker receives staged progress events and the terminal outcome of one
// recording run. The orchestrator awaits every call so events stay
// ordered, but a tracker error never fails the pipeline.
type Tracker interface {
	Update(ctx context.Context, stage string, percent int, message string) error
	Complete(ctx context.Context, results *types.Results, message string) error
	Fail(ctx context.Context, err error) error
}

// LogTracker narrates progress through structured logs.
type LogTracker struct {
	log *logrus.Entry
}

func NewLogTracker(log *logrus.Entry) *LogTracker {
	return &LogTracker{log: log}
}

func (t *LogTracker) Update(_ context.Context, stage string, percent int, message string) error {
	t.log.WithFields(logrus.Fields{
		"stage":   stage,
		"percent": percent,
	}).Info(message)
	return nil
}

func (t *LogTracker) Complete(_ context.Context, _ *types.Results, message string) error {
	t.log.WithField("stage", "completed").Info(message)
	return nil
}

func (t *LogTracker) Fail(_ context.Context, err error) error {
	t.log.WithField("stage", "failed").WithField("error", err.Error()).Error("processing failed")
	return nil
}

// RecordingStore is the slice of the persistence layer trackers mirror
// progress into.
type RecordingStore interface {
	UpdateProgress(id, status string, percent int) error
	SetFailed(id, errorMessage string) error
}

// StoreTracker mirrors progress onto the recording record so the
// externally visible status/progress fields stay current.
type StoreTracker struct {
	store       RecordingStore
	recordingID string
}

func NewStoreTracker(store RecordingStore, recordingID string) *StoreTracker {
	return &StoreTracker{store: store, recordingID: recordingID}
}

func (t *StoreTracker) Update(_ context.Context, stage string, percent int, _ string) error {
	return t.store.UpdateProgress(t.recordingID, stage, percent)
}

func (t *StoreTracker) Complete(_ context.Context, _ *types.Results, _ string) error {
	// SaveResults already marks the record completed; nothing extra here.
	return nil
}

func (t *StoreTracker) Fail(_ context.Context, err error) error {
	return t.store.SetFailed(t.recordingID, err.Error())
}

// Multi fans every event out to several trackers; the first error is
// returned after all trackers have been called.
type Multi struct {
	trackers []Tracker
}

func NewMulti(trackers ...Tracker) *Multi {
	return &Multi{trackers: trackers}
}

func (m *Multi) Update(ctx context.Context, stage string, percent int, message string) error {
	var first error
	for _, t := range m.trackers {
		if err := t.Update(ctx, stage, percent, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) Complete(ctx context.Context, results *types.Results, message string) error {
	var first error
	for _, t := range m.trackers {
		if err := t.Complete(ctx, results, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) Fail(ctx context.Context, err error) error {
	var first error
	for _, t := range m.trackers {
		if terr := t.Fail(ctx, err); terr != nil && first == nil {
			first = terr
		}
	}
	return first
}
