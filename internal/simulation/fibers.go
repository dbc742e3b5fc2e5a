package simulation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/geometry"
	"github.com/nvandessel/nervepipe/internal/sample"
	"gonum.org/v1/gonum/spatial/r2"
)

// Fiber xy placement modes (sim config fibers.xy_mode).
const (
	XYCentroid     = "CENTROID"
	XYUniformCount = "UNIFORM_COUNT"
)

// maxGridSide bounds the grid search of UNIFORM_COUNT.
const maxGridSide = 1024

// FiberSet is one written set of fibers.
type FiberSet struct {
	Index  int                `json:"index"`
	Values map[string]float64 `json:"values"`
	Dir    string             `json:"dir"`
	XY     [][2]float64       `json:"xy"`
	Nodes  int                `json:"nodes"`
}

// fiberXY places fiber cross-section locations on slide 0.
func fiberXY(doc document.Doc, smp *sample.Sample) ([]r2.Vec, error) {
	if smp == nil || len(smp.Slides) == 0 {
		return nil, fmt.Errorf("no sample slides to place fibers on")
	}
	mode, err := doc.String("fibers", "xy_mode")
	if err != nil {
		return nil, err
	}

	switch mode {
	case XYCentroid:
		var pts []r2.Vec
		for _, f := range smp.Slides[0].Fascicles {
			if len(f.Inners) == 0 {
				pts = append(pts, f.Outer.Centroid())
				continue
			}
			for _, in := range f.Inners {
				pts = append(pts, in.Centroid())
			}
		}
		return pts, nil
	case XYUniformCount:
		count, err := doc.Int("fibers", "xy_parameters", "count")
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, fmt.Errorf("fibers.xy_parameters.count must be positive")
		}
		boundary, err := smp.Boundary(0)
		if err != nil {
			return nil, err
		}
		return uniformGrid(boundary, count)
	}
	return nil, fmt.Errorf("unknown fiber xy mode %q", mode)
}

// uniformGrid refines a square grid over the boundary's bounding box until at
// least count cell centers fall inside it, then keeps the first count in
// row-major order.
func uniformGrid(boundary geometry.Trace, count int) ([]r2.Vec, error) {
	box := boundary.Bounds()
	w, h := box.Max.X-box.Min.X, box.Max.Y-box.Min.Y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("fiber boundary has no area")
	}

	for side := int(math.Ceil(math.Sqrt(float64(count)))); side <= maxGridSide; side++ {
		var pts []r2.Vec
		for row := 0; row < side && len(pts) < count; row++ {
			y := box.Min.Y + (float64(row)+0.5)*h/float64(side)
			for col := 0; col < side && len(pts) < count; col++ {
				p := r2.Vec{X: box.Min.X + (float64(col)+0.5)*w/float64(side), Y: y}
				if boundary.Contains(p) {
					pts = append(pts, p)
				}
			}
		}
		if len(pts) == count {
			return pts, nil
		}
	}
	return nil, fmt.Errorf("cannot place %d fibers inside the boundary", count)
}

// fiberZ returns node positions along the fiber from fibers.z_parameters.
func fiberZ(doc document.Doc) ([]float64, error) {
	zMin, err := doc.Float("fibers", "z_parameters", "min")
	if err != nil {
		return nil, err
	}
	zMax, err := doc.Float("fibers", "z_parameters", "max")
	if err != nil {
		return nil, err
	}
	spacing, err := doc.Float("fibers", "z_parameters", "spacing")
	if err != nil {
		return nil, err
	}
	if spacing <= 0 || zMax < zMin {
		return nil, fmt.Errorf("fibers.z_parameters: need spacing > 0 and max >= min")
	}
	n := int(math.Floor((zMax-zMin)/spacing+1e-9)) + 1
	zs := make([]float64, n)
	for i := range zs {
		zs[i] = zMin + float64(i)*spacing
	}
	return zs, nil
}

// WriteFibers writes fibersets/<i>/<k>.dat under dir for every combination
// of fiber factors. Each fiber file holds the node count and one "x y z"
// line per node.
func (s *Simulation) WriteFibers(dir string) error {
	if err := s.advance(3, "WriteFibers"); err != nil {
		return err
	}

	factors := s.factorsUnder("fibers")
	s.FiberSets = nil
	for i, combo := range combinations(factors) {
		doc, values := s.concrete(factors, combo)
		xy, err := fiberXY(doc, s.Sample)
		if err != nil {
			return fmt.Errorf("simulation %d fiberset %d: %w", s.SimID, i, err)
		}
		zs, err := fiberZ(doc)
		if err != nil {
			return fmt.Errorf("simulation %d fiberset %d: %w", s.SimID, i, err)
		}

		rel := filepath.ToSlash(filepath.Join("fibersets", strconv.Itoa(i)))
		set := FiberSet{Index: i, Values: values, Dir: rel, Nodes: len(zs)}
		for k, p := range xy {
			if err := writeFiber(filepath.Join(dir, filepath.FromSlash(rel), strconv.Itoa(k)+".dat"), p, zs); err != nil {
				return err
			}
			set.XY = append(set.XY, [2]float64{p.X, p.Y})
		}
		s.FiberSets = append(s.FiberSets, set)
	}
	return nil
}

func writeFiber(path string, p r2.Vec, zs []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating fiberset directory: %w", err)
	}
	x := strconv.FormatFloat(p.X, 'f', -1, 64)
	y := strconv.FormatFloat(p.Y, 'f', -1, 64)

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(zs)))
	sb.WriteByte('\n')
	for _, z := range zs {
		sb.WriteString(x)
		sb.WriteByte(' ')
		sb.WriteString(y)
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(z, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing fiber: %w", err)
	}
	return nil
}
