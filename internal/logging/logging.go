// ABOUTME: Builds the process logger from the logging config section
// ABOUTME: JSON for machines, the console handler for people; both write to the given writer

package logging

import (
	"io"
	"log/slog"

	"github.com/2389/botdesk/internal/config"
)

// New returns a logger honouring cfg's level and format.
func New(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(NewConsoleHandler(out, level))
}
