// Package notify implements run lifecycle notifiers: structured log output
// for local use and a Kafka producer for downstream consumers.
package notify

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/registrar-io/registrar/internal/registration"
)

// Event types emitted over the notifier interface.
const (
	EventStarted  = "STARTED"
	EventProgress = "PROGRESS"
	EventDone     = "DONE"
	EventFailed   = "FAILED"
)

// Log emits run lifecycle events through a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier. A nil logger falls back to the default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{logger: logger}
}

// Started logs the beginning of a run.
func (l *Log) Started(run uuid.UUID) {
	l.logger.Info("run started", "run_id", run, "event", EventStarted)
}

// Progress logs an intermediate status message.
func (l *Log) Progress(run uuid.UUID, message string) {
	l.logger.Info(message, "run_id", run, "event", EventProgress)
}

// Done logs the run's final summary.
func (l *Log) Done(run uuid.UUID, summary *registration.Summary) {
	l.logger.Info("run finished",
		"run_id", run,
		"event", EventDone,
		"status", summary.Status,
		"total", summary.Total,
		"imported", summary.Counts.Imported,
		"updated", summary.Counts.Updated,
		"deleted", summary.Counts.Deleted,
		"ignored", summary.Counts.Ignored,
		"conflicts", len(summary.Conflicts))
}

// Failed logs a fatal run error.
func (l *Log) Failed(run uuid.UUID, err error) {
	l.logger.Error("run failed", "run_id", run, "event", EventFailed, "error", err)
}
