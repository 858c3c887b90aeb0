package internal

import (
	"context"
	"os"

	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

var _logger = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: isatty.IsTerminal(os.Stderr.Fd()),
})

// SetVerbose lowers the global log level to debug.
func SetVerbose() {
	_logger.SetLevel(charm.DebugLevel)
}

// Log returns a logger for the given context. Log lines include the
// request ID when one is attached.
func Log(ctx context.Context) *charm.Logger {
	if ctx == nil {
		return _logger
	}
	if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok && id != "" {
		return _logger.With("request", id)
	}
	return _logger
}
