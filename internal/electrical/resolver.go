package electrical

import (
	"context"
	"log/slog"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/report"
)

// Resolver resolves conductivities and reports failures with the model's
// identifiers.
type Resolver struct {
	Reporter report.Reporter
}

// NewResolver returns a Resolver. A nil reporter discards reports.
func NewResolver(reporter report.Reporter) *Resolver {
	if reporter == nil {
		reporter = &report.Collector{}
	}
	return &Resolver{Reporter: reporter}
}

// Resolve runs ResolveConductivity on model.
func (r *Resolver) Resolve(ctx context.Context, sampleID, modelID int, model document.Doc) error {
	if _, err := ResolveConductivity(model); err != nil {
		r.Reporter.Report(ctx, err,
			slog.Int("sample", sampleID),
			slog.Int("model", modelID),
			slog.String("stage", "electrical"))
		return err
	}
	return nil
}
