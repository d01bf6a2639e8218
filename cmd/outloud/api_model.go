package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/CTAG07/outloud/pkg/bigram"
)

// ModelAPI holds the dependencies for the model API handlers. Loaded models are
// cached by name; writes go to the store first and then replace the cached copy.
type ModelAPI struct {
	store  *bigram.Store
	config *SamplingConfig
	logger *slog.Logger

	mu          sync.RWMutex
	models      map[string]*bigram.Model
	generations map[string]uint64 // bumped on every save or removal of a name

	writeMu sync.Mutex
}

// NewModelAPI creates a new instance of the ModelAPI.
func NewModelAPI(store *bigram.Store, config *SamplingConfig, logger *slog.Logger) *ModelAPI {
	return &ModelAPI{
		store:  store,
		config: config,
		logger: logger,
		models:      make(map[string]*bigram.Model),
		generations: make(map[string]uint64),
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (a *ModelAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", a.handleListModels)
	mux.HandleFunc("/api/models/", a.handleModelByName)
	mux.HandleFunc("/api/import", a.handleImport)
}

// ModelInfo describes a stored model.
type ModelInfo struct {
	Name  string            `json:"name"`
	Stats bigram.ModelStats `json:"stats"`
}

type SampleRequest struct {
	Prefix    string `json:"prefix"`
	MaxTokens *int   `json:"max_tokens"`
	Seed      *int64 `json:"seed"`
}

type CompleteRequest struct {
	Text  string `json:"text"`
	Limit *int   `json:"limit"`
}

type PruneRequest struct {
	MinFreq    int  `json:"min_freq"`
	Vocabulary bool `json:"vocabulary"`
}

// model returns the cached model called name, loading it from the store on first use.
func (a *ModelAPI) model(ctx context.Context, name string) (*bigram.Model, error) {
	a.mu.RLock()
	m, ok := a.models[name]
	gen := a.generations[name]
	a.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := a.store.LoadModel(ctx, name, bigram.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return a.cache(name, m, gen), nil
}

// cache stores a model loaded at generation gen. If the name was saved or
// removed since then, m is returned to the caller without being cached.
func (a *ModelAPI) cache(name string, m *bigram.Model, gen uint64) *bigram.Model {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.models[name]; ok {
		return cached
	}
	if a.generations[name] != gen {
		return m
	}
	a.models[name] = m
	return m
}

// save persists m under name and makes it the served copy.
func (a *ModelAPI) save(ctx context.Context, name string, m *bigram.Model) error {
	if err := a.store.SaveModel(ctx, name, m); err != nil {
		return err
	}
	a.mu.Lock()
	a.models[name] = m
	a.generations[name]++
	a.mu.Unlock()
	return nil
}

func (a *ModelAPI) forget(name string) {
	a.mu.Lock()
	delete(a.models, name)
	a.generations[name]++
	a.mu.Unlock()
}

// respondWithModelError maps model errors onto HTTP status codes.
func (a *ModelAPI) respondWithModelError(w http.ResponseWriter, name, action string, err error) {
	switch {
	case errors.Is(err, bigram.ErrModelNotFound):
		respondWithError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, bigram.ErrMalformedModel):
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid model: %v", err))
	default:
		a.logger.Error("Model request failed",
			slog.String("name", name),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed: %v", action, err))
	}
}

// sampleOptions converts a request into sampling options, applying the
// configured default and limit for max_tokens.
func (a *ModelAPI) sampleOptions(req SampleRequest) ([]bigram.SampleOption, error) {
	maxTokens := a.config.DefaultMaxTokens
	if req.MaxTokens != nil {
		if *req.MaxTokens < 0 {
			return nil, fmt.Errorf("max_tokens must be non-negative, got %d", *req.MaxTokens)
		}
		maxTokens = *req.MaxTokens
	}
	if a.config.MaxTokensLimit > 0 {
		maxTokens = min(maxTokens, a.config.MaxTokensLimit)
	}

	opts := []bigram.SampleOption{bigram.WithMaxTokens(maxTokens)}
	if req.Seed != nil {
		opts = append(opts, bigram.WithSeed(*req.Seed))
	}
	return opts, nil
}

// handleListModels returns the names of all stored models.
func (a *ModelAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	names, err := a.store.ModelNames(r.Context())
	if err != nil {
		a.logger.Error("Failed to list models", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, names)
}

// handleModelByName routes actions for a specific model, e.g., train, sample, export, delete.
func (a *ModelAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	name := parts[0]

	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		switch r.Method {
		case http.MethodGet:
			m, err := a.model(r.Context(), name)
			if err != nil {
				a.respondWithModelError(w, name, "Lookup", err)
				return
			}
			respondWithJSON(w, http.StatusOK, ModelInfo{Name: name, Stats: m.Stats()})
		case http.MethodDelete:
			a.writeMu.Lock()
			defer a.writeMu.Unlock()
			if err := a.store.RemoveModel(r.Context(), name); err != nil {
				a.respondWithModelError(w, name, "Removal", err)
				return
			}
			a.forget(name)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		a.handleTrain(w, r, name)
	case "sample":
		a.handleSample(w, r, name)
	case "stream":
		a.handleStream(w, r, name)
	case "complete":
		a.handleComplete(w, r, name)
	case "prune":
		a.handlePrune(w, r, name)
	case "export":
		a.handleExport(w, r, name)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleTrain merges a corpus, sent as the request body, into the stored counts
// of a model. The model is created if it does not exist yet.
func (a *ModelAPI) handleTrain(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	// Train a fresh copy so the served model only changes once the store has the new counts.
	m, err := a.store.LoadModel(r.Context(), name, bigram.WithLogger(a.logger))
	if errors.Is(err, bigram.ErrModelNotFound) {
		m, err = bigram.NewModel(bigram.WithLogger(a.logger)), nil
	}
	if err != nil {
		a.respondWithModelError(w, name, "Training", err)
		return
	}

	if err = m.Train(r.Context(), r.Body); err != nil {
		a.respondWithModelError(w, name, "Training", err)
		return
	}
	if err = a.save(r.Context(), name, m); err != nil {
		a.respondWithModelError(w, name, "Training", err)
		return
	}
	respondWithJSON(w, http.StatusOK, ModelInfo{Name: name, Stats: m.Stats()})
}

func (a *ModelAPI) handleSample(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	opts, err := a.sampleOptions(req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := a.model(r.Context(), name)
	if err != nil {
		a.respondWithModelError(w, name, "Sampling", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m.Sample(req.Prefix, opts...))
}

// handleStream writes the sampled tokens one per line, flushing after each.
func (a *ModelAPI) handleStream(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	opts, err := a.sampleOptions(req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := a.model(r.Context(), name)
	if err != nil {
		a.respondWithModelError(w, name, "Sampling", err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	for token := range m.SampleStream(r.Context(), req.Prefix, opts...) {
		if _, err = fmt.Fprintln(w, token); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (a *ModelAPI) handleComplete(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	limit := a.config.CompletionLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	m, err := a.model(r.Context(), name)
	if err != nil {
		a.respondWithModelError(w, name, "Completion", err)
		return
	}
	respondWithJSON(w, http.StatusOK, m.CompleteToken(req.Text, limit))
}

// handlePrune replaces a stored model with a pruned copy of itself.
func (a *ModelAPI) handlePrune(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	m, err := a.model(r.Context(), name)
	if err != nil {
		a.respondWithModelError(w, name, "Pruning", err)
		return
	}

	var pruned *bigram.Model
	if req.Vocabulary {
		pruned = m.PrunedVocabulary(req.MinFreq)
	} else {
		pruned = m.Pruned(req.MinFreq)
	}
	if err = a.save(r.Context(), name, pruned); err != nil {
		a.respondWithModelError(w, name, "Pruning", err)
		return
	}
	respondWithJSON(w, http.StatusOK, ModelInfo{Name: name, Stats: pruned.Stats()})
}

func (a *ModelAPI) handleExport(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	format, err := bigram.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := a.model(r.Context(), name)
	if err != nil {
		a.respondWithModelError(w, name, "Export", err)
		return
	}

	contentType := "application/json"
	if format == bigram.FormatMsgpack {
		contentType = "application/msgpack"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.%s\"", name, format))
	if err = m.Export(w, format); err != nil {
		a.logger.Error("Failed to export model", slog.String("name", name), slog.String("error", err.Error()))
	}
}

// handleImport stores an uploaded model file under the name given in the query,
// replacing any model with that name.
func (a *ModelAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}
	format, err := bigram.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := bigram.ReadModel(r.Body, format, bigram.WithLogger(a.logger))
	if err != nil {
		a.respondWithModelError(w, name, "Import", err)
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err = a.save(r.Context(), name, m); err != nil {
		a.respondWithModelError(w, name, "Import", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, ModelInfo{Name: name, Stats: m.Stats()})
}
