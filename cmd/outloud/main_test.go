package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/outloud/pkg/bigram"
)

// commandCorpus is a small corpus in which every prefix has a single continuation.
const commandCorpus = `open app="journal" today
open app="journal" today
close app="mail"
`

// writeTestFile writes content to name inside a fresh temporary directory.
func writeTestFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// writeTestConfig writes a config file whose database lives in a temporary directory.
func writeTestConfig(t *testing.T) string {
	dir := t.TempDir()
	config := DefaultConfig()
	config.Server.DataDir = dir
	config.Server.DatabasePath = filepath.Join(dir, "models.db")
	config.Server.LogLevel = "error"

	path := filepath.Join(dir, "config.json")
	if err := config.Save(path); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// runCommand runs the binary's entry point with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	var stdout bytes.Buffer
	err := run(context.Background(), args, &stdout, io.Discard)
	return stdout.String(), err
}

// setupTestServer creates a Server backed by a fresh SQLite database.
func setupTestServer(t *testing.T, config *Config) *Server {
	db, err := initDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = bigram.SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	store, err := bigram.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(store.Close)

	if config == nil {
		config = DefaultConfig()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(config, logger, store)
}

// doRequest sends a request through the server's mux and returns the recorded response.
func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.apiMux.ServeHTTP(rec, req)
	return rec
}

// trainTestModel trains name on corpus through the API and fails the test on error.
func trainTestModel(t *testing.T, s *Server, name, corpus string) {
	rec := doRequest(s, http.MethodPost, "/api/models/"+name+"/train", corpus)
	if rec.Code != http.StatusOK {
		t.Fatalf("training %s returned %d: %s", name, rec.Code, rec.Body.String())
	}
}
