package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"

	"recording-insights-go/internal/types"
)

// ErrRecordingNotFound is returned when no recording exists for an id.
var ErrRecordingNotFound = fmt.Errorf("recording not found")

// RecordStore persists recording metadata, progress and results in an
// embedded badger database.
type RecordStore struct {
	db *badger.DB
}

func NewRecordStore(path string) (*RecordStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &RecordStore{db: db}, nil
}

func recordingKey(id string) []byte { return []byte("recording:" + id) }
func resultsKey(id string) []byte   { return []byte("results:" + id) }

// PutRecording writes the full recording record.
func (s *RecordStore) PutRecording(rec *types.Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordingKey(rec.ID), data)
	})
}

// GetRecording fetches a recording by id.
func (s *RecordStore) GetRecording(id string) (*types.Recording, error) {
	var rec types.Recording
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordingKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &rec, nil
}

// UpdateProgress mirrors a progress event onto the recording record.
func (s *RecordStore) UpdateProgress(id, status string, percent int) error {
	return s.mutate(id, func(rec *types.Recording) {
		rec.Status = status
		rec.ProcessingProgress = percent
		rec.ErrorMessage = ""
	})
}

// SetFailed marks the recording failed with its error message.
func (s *RecordStore) SetFailed(id, errorMessage string) error {
	return s.mutate(id, func(rec *types.Recording) {
		rec.Status = "failed"
		rec.ErrorMessage = errorMessage
	})
}

// SaveResults persists the run's results and marks the recording completed.
func (s *RecordStore) SaveResults(id string, results *types.Results) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(resultsKey(id), data)
	}); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return s.mutate(id, func(rec *types.Recording) {
		rec.Status = "completed"
		rec.ProcessingProgress = 100
		rec.ErrorMessage = ""
	})
}

// GetResults fetches persisted results, or nil if none exist yet.
func (s *RecordStore) GetResults(id string) (*types.Results, error) {
	var results types.Results
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultsKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &results)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	return &results, nil
}

func (s *RecordStore) mutate(id string, apply func(*types.Recording)) error {
	rec, err := s.GetRecording(id)
	if err != nil {
		return err
	}
	apply(rec)
	return s.PutRecording(rec)
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}
