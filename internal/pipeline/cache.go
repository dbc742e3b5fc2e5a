package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/nvandessel/nervepipe/internal/checkpoint"
	"github.com/nvandessel/nervepipe/internal/status"
)

// checkpointState decides whether the checkpoint at path can be reused. It
// is a hit only in smart mode, when the file verifies and its status record
// is complete with the same checksum. A verified file with no record is
// adopted. Anything else is rebuilt.
func (o *Orchestrator) checkpointState(ctx context.Context, key status.Key, path string, smart bool) (bool, error) {
	if !smart {
		return false, nil
	}
	rel := o.rel(path)

	restored, err := checkpoint.Restore(ctx, o.Mirror, rel, path)
	if err != nil {
		o.Logger.Warn("mirror restore failed", "key", key.String(), "error", err)
	} else if restored {
		o.Logger.Info("restored checkpoint from mirror", "key", key.String())
		o.Events.Record("restored", map[string]any{"key": key.String(), "path": rel})
	}

	header, err := checkpoint.Verify(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			o.Logger.Warn("checkpoint will be rebuilt", "key", key.String(), "error", err)
		}
		return false, nil
	}

	rec, err := o.Status.Get(ctx, key)
	if err != nil {
		return false, err
	}
	switch rec.State {
	case status.Absent:
		o.Logger.Debug("adopting untracked checkpoint", "key", key.String())
		if err := o.Status.MarkComplete(ctx, key, rel, header.Checksum, rec.RunID); err != nil {
			return false, err
		}
		return true, nil
	case status.Complete:
		if rec.Checksum != header.Checksum {
			o.Logger.Warn("checkpoint checksum does not match its record", "key", key.String())
			return false, nil
		}
		return true, nil
	default:
		o.Logger.Warn("checkpoint was left building by an earlier run", "key", key.String(), "run_id", rec.RunID)
		return false, nil
	}
}

// persist writes v as a checkpoint, marks it complete and mirrors it.
func (o *Orchestrator) persist(ctx context.Context, key status.Key, path, kind, runID string, v any) error {
	header, err := checkpoint.Write(path, kind, key.String(), v)
	if err != nil {
		return err
	}
	rel := o.rel(path)
	if err := o.Status.MarkComplete(ctx, key, rel, header.Checksum, runID); err != nil {
		return err
	}
	if o.Mirror != nil {
		if err := o.Mirror.Put(ctx, rel, path); err != nil {
			o.Reporter.Report(ctx, err, slog.String("key", key.String()), slog.String("stage", "mirror"))
		}
	}
	return nil
}

// abandon clears the record of a failed stage and removes its checkpoint so
// a later run cannot mistake it for a finished one.
func (o *Orchestrator) abandon(ctx context.Context, key status.Key, path string) {
	if err := o.Status.Clear(context.WithoutCancel(ctx), key); err != nil {
		o.Logger.Warn("clearing status failed", "key", key.String(), "error", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.Logger.Warn("removing checkpoint failed", "key", key.String(), "error", err)
	}
}

func (o *Orchestrator) rel(path string) string {
	rel, err := o.Layout.Rel(path)
	if err != nil {
		return path
	}
	return rel
}
