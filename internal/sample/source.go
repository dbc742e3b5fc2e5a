package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/nervepipe/internal/geometry"
	"gonum.org/v1/gonum/spatial/r2"
)

// Mask input modes (sample config modes.mask_input).
const (
	InputTraces = "TRACES"
	InputMasks  = "MASKS"
)

// TracesFile is the contour file read by the TRACES source, inside a slide's
// masks directory.
const TracesFile = "traces.json"

// Contours is what a TraceSource extracts from one slide, in pixels.
type Contours struct {
	Nerve     *geometry.Trace
	Fascicles []Fascicle
}

// TraceSource extracts slide contours from a masks directory.
type TraceSource interface {
	Load(ctx context.Context, masksDir string) (Contours, error)
}

// SourceFor returns the TraceSource for a modes.mask_input value. An empty
// mode selects TRACES.
func SourceFor(mode string) (TraceSource, error) {
	switch mode {
	case "", InputTraces:
		return TraceFileSource{}, nil
	case InputMasks:
		return newMaskSource()
	}
	return nil, fmt.Errorf("unknown mask input mode %q", mode)
}

// TraceFileSource reads pre-extracted contours from traces.json:
//
//	{"nerve": [[x, y], ...], "fascicles": [{"outer": [[x, y], ...], "inners": [[[x, y], ...]]}]}
type TraceFileSource struct{}

type traceFile struct {
	Nerve     *geometry.Trace `json:"nerve"`
	Fascicles []Fascicle      `json:"fascicles"`
}

// Load implements TraceSource.
func (TraceFileSource) Load(ctx context.Context, masksDir string) (Contours, error) {
	if err := ctx.Err(); err != nil {
		return Contours{}, err
	}
	path := filepath.Join(masksDir, TracesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Contours{}, fmt.Errorf("reading traces: %w", err)
	}
	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return Contours{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return Contours{Nerve: tf.Nerve, Fascicles: tf.Fascicles}, nil
}

// scaled converts pixel contours to micrometers.
func (c Contours) scaled(umPerPx float64) Contours {
	if umPerPx == 1 {
		return c
	}
	origin := r2.Vec{}
	out := Contours{Fascicles: make([]Fascicle, len(c.Fascicles))}
	if c.Nerve != nil {
		n := c.Nerve.ScaleAbout(origin, umPerPx)
		out.Nerve = &n
	}
	for i, f := range c.Fascicles {
		sf := Fascicle{Outer: f.Outer.ScaleAbout(origin, umPerPx)}
		for _, in := range f.Inners {
			sf.Inners = append(sf.Inners, in.ScaleAbout(origin, umPerPx))
		}
		out.Fascicles[i] = sf
	}
	return out
}
