package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/geometry"
	"github.com/nvandessel/nervepipe/internal/project"
)

// WriteMode selects the on-disk contour format produced by Builder.Write.
type WriteMode string

// WriteSectionwise2D writes one text file per contour per slide.
const WriteSectionwise2D WriteMode = "SECTIONWISE2D"

// Builder runs the sample build steps in order: Compose, InitMap,
// BuildFileStructure, Populate, Write, OutputMorphology. Each step fails if
// the one before it did not run.
type Builder struct {
	layout project.Layout
	logger *slog.Logger

	cfg    document.Doc
	sample *Sample
	step   int
}

// NewBuilder returns a Builder writing under layout.
func NewBuilder(layout project.Layout, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{layout: layout, logger: logger}
}

func (b *Builder) advance(from int, name string) error {
	if b.step != from {
		return fmt.Errorf("sample builder: %s called out of order", name)
	}
	b.step++
	return nil
}

// Compose attaches the sample config and run identifier.
func (b *Builder) Compose(cfg document.Doc, sampleID int) error {
	if err := b.advance(0, "Compose"); err != nil {
		return err
	}
	mode, err := ParseNerveMode(cfg.StringOr(string(NervePresent), "modes", "nerve"))
	if err != nil {
		return fmt.Errorf("sample %d: %w", sampleID, err)
	}
	scale := cfg.FloatOr(1, "scale", "um_per_px")
	if scale <= 0 {
		return fmt.Errorf("sample %d: scale.um_per_px must be positive, got %v", sampleID, scale)
	}
	b.cfg = cfg
	b.sample = &Sample{
		ID:        sampleID,
		Name:      cfg.StringOr("", "sample"),
		NerveMode: mode,
		Scale:     scale,
	}
	return nil
}

// InitMap lays out the slides listed under "slides" ([{cassette, number}]).
// A config without slides gets a single slide 0/0.
func (b *Builder) InitMap() error {
	if err := b.advance(1, "InitMap"); err != nil {
		return err
	}
	if !b.cfg.Has("slides") {
		b.sample.Slides = []Slide{{Cassette: 0, Number: 0}}
		return nil
	}
	entries, err := b.cfg.List("slides")
	if err != nil {
		return fmt.Errorf("sample %d: %w", b.sample.ID, err)
	}
	if len(entries) == 0 {
		b.sample.Slides = []Slide{{Cassette: 0, Number: 0}}
		return nil
	}
	for i, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			return fmt.Errorf("sample %d: slides[%d] is not an object", b.sample.ID, i)
		}
		entry := document.Doc(m)
		cassette, err := entry.Int("cassette")
		if err != nil {
			return fmt.Errorf("sample %d: slides[%d]: %w", b.sample.ID, i, err)
		}
		number, err := entry.Int("number")
		if err != nil {
			return fmt.Errorf("sample %d: slides[%d]: %w", b.sample.ID, i, err)
		}
		b.sample.Slides = append(b.sample.Slides, Slide{Cassette: cassette, Number: number})
	}
	return nil
}

// BuildFileStructure creates the masks input and output directories of every
// slide.
func (b *Builder) BuildFileStructure() error {
	if err := b.advance(2, "BuildFileStructure"); err != nil {
		return err
	}
	for _, s := range b.sample.Slides {
		dir := b.layout.SlideDir(b.sample.ID, s.Cassette, s.Number)
		for _, sub := range []string{"masks", "sectionwise2d"} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				return fmt.Errorf("creating slide directory: %w", err)
			}
		}
	}
	return nil
}

// Populate loads every slide's contours from source and converts them to
// micrometers.
func (b *Builder) Populate(ctx context.Context, source TraceSource) error {
	if err := b.advance(3, "Populate"); err != nil {
		return err
	}
	for i := range b.sample.Slides {
		s := &b.sample.Slides[i]
		masks := b.layout.SlideMasks(b.sample.ID, s.Cassette, s.Number)
		c, err := source.Load(ctx, masks)
		if err != nil {
			return fmt.Errorf("slide %d/%d: %w", s.Cassette, s.Number, err)
		}
		c = c.scaled(b.sample.Scale)

		if b.sample.NerveMode == NervePresent && c.Nerve == nil {
			return fmt.Errorf("slide %d/%d: nerve mode %s but no nerve contour", s.Cassette, s.Number, NervePresent)
		}
		if b.sample.NerveMode == NerveNotPresent {
			c.Nerve = nil
		}
		if len(c.Fascicles) == 0 {
			return fmt.Errorf("slide %d/%d: no fascicle contours", s.Cassette, s.Number)
		}
		s.Nerve = c.Nerve
		s.Fascicles = c.Fascicles
		b.logger.Debug("slide populated", "cassette", s.Cassette, "number", s.Number, "fascicles", len(s.Fascicles))
	}
	return nil
}

// Write exports the contours in mode.
func (b *Builder) Write(mode WriteMode) error {
	if err := b.advance(4, "Write"); err != nil {
		return err
	}
	if mode != WriteSectionwise2D {
		return fmt.Errorf("unsupported write mode %q", mode)
	}
	for _, s := range b.sample.Slides {
		root := filepath.Join(b.layout.SlideDir(b.sample.ID, s.Cassette, s.Number), "sectionwise2d")
		if s.Nerve != nil {
			if err := writeTrace(filepath.Join(root, "nerve", "0.txt"), *s.Nerve); err != nil {
				return err
			}
		}
		for k, f := range s.Fascicles {
			fdir := filepath.Join(root, "fascicles", strconv.Itoa(k))
			if err := writeTrace(filepath.Join(fdir, "outer", "0.txt"), f.Outer); err != nil {
				return err
			}
			for m, in := range f.Inners {
				if err := writeTrace(filepath.Join(fdir, "inners", strconv.Itoa(m)+".txt"), in); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// writeTrace writes the point count followed by one "x y" line per point.
func writeTrace(path string, t geometry.Trace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(t.Len()))
	sb.WriteByte('\n')
	for _, p := range t.Points {
		sb.WriteString(strconv.FormatFloat(p.X, 'f', -1, 64))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(p.Y, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

// Morphology summarizes contour areas in µm².
type Morphology struct {
	Slides []SlideMorphology `json:"slides"`
}

// SlideMorphology holds the areas of one slide.
type SlideMorphology struct {
	Cassette  int                  `json:"cassette"`
	Number    int                  `json:"number"`
	NerveArea *float64             `json:"nerve_area,omitempty"`
	Fascicles []FascicleMorphology `json:"fascicles"`
}

// FascicleMorphology holds the areas of one fascicle.
type FascicleMorphology struct {
	OuterArea  float64   `json:"outer_area"`
	InnerAreas []float64 `json:"inner_areas"`
}

// MorphologyOf computes the areas of every contour in s.
func MorphologyOf(s *Sample) Morphology {
	var m Morphology
	for _, slide := range s.Slides {
		sm := SlideMorphology{Cassette: slide.Cassette, Number: slide.Number}
		if slide.Nerve != nil {
			a := slide.Nerve.Area()
			sm.NerveArea = &a
		}
		for _, f := range slide.Fascicles {
			fm := FascicleMorphology{OuterArea: f.Outer.Area(), InnerAreas: []float64{}}
			for _, in := range f.Inners {
				fm.InnerAreas = append(fm.InnerAreas, in.Area())
			}
			sm.Fascicles = append(sm.Fascicles, fm)
		}
		m.Slides = append(m.Slides, sm)
	}
	return m
}

// OutputMorphology writes samples/<sample>/morphology.json.
func (b *Builder) OutputMorphology() error {
	if err := b.advance(5, "OutputMorphology"); err != nil {
		return err
	}
	data, err := json.MarshalIndent(MorphologyOf(b.sample), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding morphology: %w", err)
	}
	if err := os.WriteFile(b.layout.Morphology(b.sample.ID), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing morphology: %w", err)
	}
	return nil
}

// Sample returns the built sample once every step has run.
func (b *Builder) Sample() (*Sample, error) {
	if b.step != 6 {
		return nil, fmt.Errorf("sample builder: incomplete (%d of 6 steps)", b.step)
	}
	return b.sample, nil
}

// Build runs every step with the source selected by the sample config, or
// override when it is non-nil.
func Build(ctx context.Context, layout project.Layout, cfg document.Doc, sampleID int, override TraceSource, logger *slog.Logger) (*Sample, error) {
	source := override
	if source == nil {
		var err error
		if source, err = SourceFor(cfg.StringOr("", "modes", "mask_input")); err != nil {
			return nil, fmt.Errorf("sample %d: %w", sampleID, err)
		}
	}

	b := NewBuilder(layout, logger)
	if err := b.Compose(cfg, sampleID); err != nil {
		return nil, err
	}
	if err := b.InitMap(); err != nil {
		return nil, err
	}
	if err := b.BuildFileStructure(); err != nil {
		return nil, err
	}
	if err := b.Populate(ctx, source); err != nil {
		return nil, err
	}
	if err := b.Write(WriteSectionwise2D); err != nil {
		return nil, err
	}
	if err := b.OutputMorphology(); err != nil {
		return nil, err
	}
	return b.Sample()
}
