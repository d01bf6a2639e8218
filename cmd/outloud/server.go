package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/CTAG07/outloud/pkg/bigram"
)

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server wires the model API onto a single mux.
type Server struct {
	config   *Config
	logger   *slog.Logger
	modelAPI *ModelAPI
	apiMux   *http.ServeMux
}

// NewServer creates a Server that serves the models kept in store.
func NewServer(config *Config, logger *slog.Logger, store *bigram.Store) *Server {
	server := &Server{
		config:   config,
		logger:   logger,
		modelAPI: NewModelAPI(store, config.Sampling, logger),
		apiMux:   http.NewServeMux(),
	}

	server.modelAPI.RegisterRoutes(server.apiMux)
	server.apiMux.HandleFunc("/api/version", server.handleVersion)

	return server
}

// handleVersion returns the application's build information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// runServe hosts the API until ctx is cancelled, then shuts the server down
// gracefully.
func runServe(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("serve")
	addr := fs.String("addr", env.config.Server.ApiAddr, "address the API listens on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := env.logger
	store, closeStore, err := openStore(env.config, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	server := NewServer(env.config, logger, store)
	apiHttpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.apiMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting api server", slog.String("address", apiHttpServer.Addr))
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping server.")
	case err = <-serveErr:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	timeout := time.Duration(env.config.Server.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("outloud has shut down.")
	return nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(payload); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
