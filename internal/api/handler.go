package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"recording-insights-go/internal/logger"
	"recording-insights-go/internal/manifest"
	"recording-insights-go/internal/processor"
	"recording-insights-go/internal/progress"
	"recording-insights-go/internal/storage"
	"recording-insights-go/internal/types"
)

// Handlers exposes the processing pipeline over HTTP. Processing runs are
// kicked off asynchronously; clients follow progress via the websocket
// feed or by polling the recording.
type Handlers struct {
	processor        *processor.Processor
	store            *storage.RecordStore
	hub              *progress.Hub
	batchConcurrency int
}

func NewHandlers(proc *processor.Processor, store *storage.RecordStore, hub *progress.Hub, batchConcurrency int) *Handlers {
	return &Handlers{
		processor:        proc,
		store:            store,
		hub:              hub,
		batchConcurrency: batchConcurrency,
	}
}

func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{id}", h.GetRecording).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{id}/process", h.ProcessRecording).Methods(http.MethodPost)
	r.HandleFunc("/batch", h.ProcessBatch).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.hub.Serve)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

// GetRecording returns the recording record plus any persisted results.
func (h *Handlers) GetRecording(w http.ResponseWriter, r *http.Request) {
	log := logger.New().WithRequest(r)
	id := mux.Vars(r)["id"]

	rec, err := h.store.GetRecording(id)
	if err == storage.ErrRecordingNotFound {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("get recording failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	results, err := h.store.GetResults(id)
	if err != nil {
		log.WithField("error", err.Error()).Error("get results failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recording": rec,
		"results":   results,
	})
}

// ProcessRecording starts a pipeline run for the recording and returns
// immediately with 202.
func (h *Handlers) ProcessRecording(w http.ResponseWriter, r *http.Request) {
	log := logger.New().WithRequest(r).WithField("handler", "process")
	id := mux.Vars(r)["id"]

	var opts types.ProcessingOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "invalid options payload", http.StatusBadRequest)
			return
		}
	}

	if _, err := h.store.GetRecording(id); err == storage.ErrRecordingNotFound {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.WithField("error", err.Error()).Error("get recording failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.WithField("recording_id", id).Info("processing started")
	go func() {
		tracker := h.trackerFor(id)
		h.processor.Process(context.Background(), id, opts, tracker)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"recording_id": id, "status": "processing"})
}

type batchRequest struct {
	ManifestPath string                  `json:"manifest_path"`
	Options      types.ProcessingOptions `json:"options"`
}

// ProcessBatch loads a manifest workbook, registers its recordings and
// processes them with bounded concurrency.
func (h *Handlers) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.New().WithRequest(r).WithField("handler", "batch")

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ManifestPath == "" {
		http.Error(w, "manifest_path is required", http.StatusBadRequest)
		return
	}

	entries, err := manifest.Load(req.ManifestPath)
	if err != nil {
		log.WithField("error", err.Error()).Warn("manifest load failed")
		http.Error(w, fmt.Sprintf("manifest load failed: %v", err), http.StatusBadRequest)
		return
	}

	items := make([]processor.BatchItem, 0, len(entries))
	for _, e := range entries {
		rec := &types.Recording{
			ID:             e.RecordingID,
			FileURL:        e.FileURL,
			EnableCoaching: e.EnableCoaching,
			Status:         "pending",
		}
		if err := h.store.PutRecording(rec); err != nil {
			log.WithField("error", err.Error()).Error("register manifest recording failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		opts := req.Options
		if e.Strategy != "" {
			opts.Strategy = e.Strategy
		}
		items = append(items, processor.BatchItem{RecordingID: e.RecordingID, Options: opts})
	}

	log.WithField("recordings", len(items)).Info("batch processing started")
	go h.processor.ProcessBatch(context.Background(), items, h.batchConcurrency, h.trackerFor)

	writeJSON(w, http.StatusAccepted, map[string]any{"recordings": len(items), "status": "processing"})
}

func (h *Handlers) trackerFor(recordingID string) progress.Tracker {
	return progress.NewMulti(
		progress.NewLogTracker(logger.Component("progress").WithField("recording_id", recordingID)),
		progress.NewStoreTracker(h.store, recordingID),
		h.hub.ForRecording(recordingID),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Component("api").WithField("error", err.Error()).Error("failed to write response")
	}
}
