// Package project maps pipeline entities to their files under a project root
// and resolves the configuration documents a run needs.
package project

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/pathutil"
)

// StateDirName holds pipeline bookkeeping (status database, event log)
// inside the project root.
const StateDirName = ".nervepipe"

// Layout resolves paths relative to a project root. The directory structure
// is shared with the external solver and must not change.
type Layout struct {
	Root string
}

// NewLayout returns a Layout for root made absolute.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolving project root: %w", err)
	}
	return Layout{Root: abs}, nil
}

func id(n int) string { return strconv.Itoa(n) }

// SampleDir is samples/<sample>.
func (l Layout) SampleDir(sample int) string {
	return filepath.Join(l.Root, "samples", id(sample))
}

// SampleConfig is samples/<sample>/sample.json.
func (l Layout) SampleConfig(sample int) string {
	return filepath.Join(l.SampleDir(sample), "sample.json")
}

// SampleCheckpoint is samples/<sample>/sample.obj.
func (l Layout) SampleCheckpoint(sample int) string {
	return filepath.Join(l.SampleDir(sample), "sample.obj")
}

// Morphology is samples/<sample>/morphology.json.
func (l Layout) Morphology(sample int) string {
	return filepath.Join(l.SampleDir(sample), "morphology.json")
}

// SlideDir is samples/<sample>/slides/<cassette>/<number>.
func (l Layout) SlideDir(sample, cassette, number int) string {
	return filepath.Join(l.SampleDir(sample), "slides", id(cassette), id(number))
}

// SlideMasks is the mask and trace input directory of one slide.
func (l Layout) SlideMasks(sample, cassette, number int) string {
	return filepath.Join(l.SlideDir(sample, cassette, number), "masks")
}

// ModelDir is samples/<sample>/models/<model>.
func (l Layout) ModelDir(sample, model int) string {
	return filepath.Join(l.SampleDir(sample), "models", id(model))
}

// ModelConfig is samples/<sample>/models/<model>/model.json.
func (l Layout) ModelConfig(sample, model int) string {
	return filepath.Join(l.ModelDir(sample, model), "model.json")
}

// SimDir is samples/<sample>/models/<model>/sims/<sim>.
func (l Layout) SimDir(sample, model, sim int) string {
	return filepath.Join(l.ModelDir(sample, model), "sims", id(sim))
}

// SimCheckpoint is the sim.obj inside SimDir.
func (l Layout) SimCheckpoint(sample, model, sim int) string {
	return filepath.Join(l.SimDir(sample, model, sim), "sim.obj")
}

// SimConfig is config/user/sims/<sim>.json.
func (l Layout) SimConfig(sim int) string {
	return filepath.Join(l.Root, "config", "user", "sims", id(sim)+".json")
}

// RunConfig is config/user/runs/<name>.json. name comes from the operator,
// so the result is checked to stay inside the root.
func (l Layout) RunConfig(name string) (string, error) {
	return pathutil.Within(l.Root, filepath.Join(l.Root, "config", "user", "runs", name+".json"))
}

// CuffPreset is config/system/cuffs/<preset>; preset names include their
// .json suffix.
func (l Layout) CuffPreset(preset string) (string, error) {
	return pathutil.Within(l.Root, filepath.Join(l.Root, "config", "system", "cuffs", preset))
}

// StateDir is <root>/.nervepipe.
func (l Layout) StateDir() string {
	return filepath.Join(l.Root, StateDirName)
}

// Rel returns path relative to the root with forward slashes, the form used
// for mirror object keys and status records.
func (l Layout) Rel(path string) (string, error) {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
