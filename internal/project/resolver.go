package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/nvandessel/nervepipe/internal/cuff"
	"github.com/nvandessel/nervepipe/internal/document"
)

// RunSpec names the sample, models and sims one run processes. It is read
// once from the run config and not modified afterwards.
type RunSpec struct {
	Name   string
	Path   string
	Sample int
	Models []int
	Sims   []int
}

// MissingConfigError lists every required configuration file that was
// absent when a run started.
type MissingConfigError struct {
	Paths []string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing configuration files: %s", strings.Join(e.Paths, ", "))
}

// ModelConfig is one model document with its run identifier.
type ModelConfig struct {
	ID  int
	Doc document.Doc
}

// SimConfig is one sim document with its run identifier.
type SimConfig struct {
	ID  int
	Doc document.Doc
}

// Configs holds every document a run reads, in run order.
type Configs struct {
	Sample document.Doc
	Models []ModelConfig
	Sims   []SimConfig
}

// Resolver supplies run specs, configuration documents and cuff presets.
type Resolver interface {
	RunSpec(name string) (RunSpec, error)
	LoadConfigs(spec RunSpec) (*Configs, error)
	CuffPreset(name string) (*cuff.Preset, error)
}

// FileResolver reads documents from a project layout on disk.
type FileResolver struct {
	Layout Layout
}

// NewFileResolver returns a resolver over layout.
func NewFileResolver(layout Layout) *FileResolver {
	return &FileResolver{Layout: layout}
}

// RunSpec reads config/user/runs/<name>.json.
func (r *FileResolver) RunSpec(name string) (RunSpec, error) {
	if name == "" {
		return RunSpec{}, fmt.Errorf("run name is required")
	}
	path, err := r.Layout.RunConfig(name)
	if err != nil {
		return RunSpec{}, fmt.Errorf("run %s: %w", name, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return RunSpec{}, &MissingConfigError{Paths: []string{path}}
	}
	doc, err := document.Load(path)
	if err != nil {
		return RunSpec{}, fmt.Errorf("loading run %s: %w", name, err)
	}

	spec := RunSpec{Name: name, Path: path}
	if spec.Sample, err = doc.Int("sample"); err != nil {
		return RunSpec{}, fmt.Errorf("run %s: %w", name, err)
	}
	if spec.Models, err = doc.Ints("models"); err != nil {
		return RunSpec{}, fmt.Errorf("run %s: %w", name, err)
	}
	if spec.Sims, err = doc.Ints("sims"); err != nil {
		return RunSpec{}, fmt.Errorf("run %s: %w", name, err)
	}
	return spec, nil
}

// LoadConfigs checks that every file the run needs exists before reading
// any of them. All absent files are reported in one MissingConfigError.
func (r *FileResolver) LoadConfigs(spec RunSpec) (*Configs, error) {
	samplePath := r.Layout.SampleConfig(spec.Sample)
	modelPaths := make([]string, len(spec.Models))
	for i, m := range spec.Models {
		modelPaths[i] = r.Layout.ModelConfig(spec.Sample, m)
	}
	simPaths := make([]string, len(spec.Sims))
	for i, s := range spec.Sims {
		simPaths[i] = r.Layout.SimConfig(s)
	}

	var absent []string
	for _, p := range append(append([]string{samplePath}, modelPaths...), simPaths...) {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				absent = append(absent, p)
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", p, err)
		}
	}
	if len(absent) > 0 {
		return nil, &MissingConfigError{Paths: absent}
	}

	cfgs := &Configs{}
	var err error
	if cfgs.Sample, err = document.Load(samplePath); err != nil {
		return nil, fmt.Errorf("loading sample %d config: %w", spec.Sample, err)
	}
	for i, m := range spec.Models {
		doc, err := document.Load(modelPaths[i])
		if err != nil {
			return nil, fmt.Errorf("loading model %d config: %w", m, err)
		}
		cfgs.Models = append(cfgs.Models, ModelConfig{ID: m, Doc: doc})
	}
	for i, s := range spec.Sims {
		doc, err := document.Load(simPaths[i])
		if err != nil {
			return nil, fmt.Errorf("loading sim %d config: %w", s, err)
		}
		cfgs.Sims = append(cfgs.Sims, SimConfig{ID: s, Doc: doc})
	}
	return cfgs, nil
}

// CuffPreset loads config/system/cuffs/<name>.
func (r *FileResolver) CuffPreset(name string) (*cuff.Preset, error) {
	path, err := r.Layout.CuffPreset(name)
	if err != nil {
		return nil, fmt.Errorf("cuff preset %s: %w", name, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, &MissingConfigError{Paths: []string{path}}
	}
	return cuff.Load(path, name)
}
