package main

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// newLogger returns a slog.Logger backed by a charm text handler writing to w.
// Unknown level names fall back to info.
func newLogger(level string, w io.Writer) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "outloud",
		Level:           lvl,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
	})
	return slog.New(handler)
}
