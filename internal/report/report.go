// Package report delivers pipeline failures to the operator.
package report

import (
	"context"
	"log/slog"

	"github.com/nvandessel/nervepipe/internal/logging"
)

// Reporter receives every error a stage reports before the pipeline decides
// whether to continue.
type Reporter interface {
	Report(ctx context.Context, err error, attrs ...slog.Attr)
}

// LogReporter logs errors at Error level and records them in the event log.
type LogReporter struct {
	Logger *slog.Logger
	Events *logging.EventLog
}

// NewLogReporter returns a LogReporter. A nil logger uses slog.Default.
func NewLogReporter(logger *slog.Logger, events *logging.EventLog) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger, Events: events}
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	r.Logger.LogAttrs(ctx, slog.LevelError, err.Error(), attrs...)

	fields := make(map[string]any, len(attrs)+1)
	for _, a := range attrs {
		fields[a.Key] = a.Value.Any()
	}
	fields["error"] = err.Error()
	r.Events.Record("error", fields)
}

// Collector keeps reported errors in memory.
type Collector struct {
	Errors []error
}

// Report implements Reporter.
func (c *Collector) Report(_ context.Context, err error, _ ...slog.Attr) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}
