// Package geometry provides planar contour types and the enclosing-circle
// solver used when placing a cuff around a tissue cross-section.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
)

// Trace is an ordered, implicitly closed planar contour. Coordinates are in
// micrometers once a sample has been scaled.
type Trace struct {
	Points []r2.Vec
}

// NewTrace builds a Trace from [x, y] pairs.
func NewTrace(xy [][2]float64) Trace {
	pts := make([]r2.Vec, len(xy))
	for i, p := range xy {
		pts[i] = r2.Vec{X: p[0], Y: p[1]}
	}
	return Trace{Points: pts}
}

// Len returns the number of points in the trace.
func (t Trace) Len() int {
	return len(t.Points)
}

// Copy returns a trace that shares no memory with t.
func (t Trace) Copy() Trace {
	pts := make([]r2.Vec, len(t.Points))
	copy(pts, t.Points)
	return Trace{Points: pts}
}

// DownSample returns a copy keeping every stride-th point, starting with the
// first. A stride of 1 or less copies the trace unchanged.
func (t Trace) DownSample(stride int) Trace {
	if stride <= 1 {
		return t.Copy()
	}
	pts := make([]r2.Vec, 0, len(t.Points)/stride+1)
	for i := 0; i < len(t.Points); i += stride {
		pts = append(pts, t.Points[i])
	}
	return Trace{Points: pts}
}

// Translate returns a copy shifted by (dx, dy).
func (t Trace) Translate(dx, dy float64) Trace {
	d := r2.Vec{X: dx, Y: dy}
	pts := make([]r2.Vec, len(t.Points))
	for i, p := range t.Points {
		pts[i] = r2.Add(p, d)
	}
	return Trace{Points: pts}
}

// Scale returns a copy scaled by factor about the trace centroid.
func (t Trace) Scale(factor float64) Trace {
	return t.ScaleAbout(t.Centroid(), factor)
}

// ScaleAbout returns a copy scaled by factor about origin. Pixel contours are
// converted to micrometers with ScaleAbout(r2.Vec{}, umPerPx).
func (t Trace) ScaleAbout(origin r2.Vec, factor float64) Trace {
	pts := make([]r2.Vec, len(t.Points))
	for i, p := range t.Points {
		pts[i] = r2.Add(origin, r2.Scale(factor, r2.Sub(p, origin)))
	}
	return Trace{Points: pts}
}

// signedArea is positive for counter-clockwise traces.
func (t Trace) signedArea() float64 {
	n := len(t.Points)
	if n < 3 {
		return 0
	}
	terms := make([]float64, n)
	for i := range t.Points {
		terms[i] = r2.Cross(t.Points[i], t.Points[(i+1)%n])
	}
	return floats.Sum(terms) / 2
}

// Area returns the enclosed area (shoelace formula).
func (t Trace) Area() float64 {
	return math.Abs(t.signedArea())
}

// Centroid returns the area centroid of the polygon. Traces with no enclosed
// area fall back to the mean of their points.
func (t Trace) Centroid() r2.Vec {
	n := len(t.Points)
	if n == 0 {
		return r2.Vec{}
	}
	a := t.signedArea()
	if a == 0 {
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i, p := range t.Points {
			xs[i], ys[i] = p.X, p.Y
		}
		return r2.Vec{X: floats.Sum(xs) / float64(n), Y: floats.Sum(ys) / float64(n)}
	}
	var cx, cy float64
	for i := range t.Points {
		p, q := t.Points[i], t.Points[(i+1)%n]
		cross := r2.Cross(p, q)
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	return r2.Vec{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Contains reports whether p lies inside the polygon (even-odd rule).
func (t Trace) Contains(p r2.Vec) bool {
	n := len(t.Points)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := t.Points[i], t.Points[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// Bounds returns the axis-aligned bounding box of the trace.
func (t Trace) Bounds() r2.Box {
	if len(t.Points) == 0 {
		return r2.Box{}
	}
	box := r2.Box{Min: t.Points[0], Max: t.Points[0]}
	for _, p := range t.Points[1:] {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
	}
	return box
}

// MarshalJSON encodes the trace as [[x, y], ...].
func (t Trace) MarshalJSON() ([]byte, error) {
	xy := make([][2]float64, len(t.Points))
	for i, p := range t.Points {
		xy[i] = [2]float64{p.X, p.Y}
	}
	return json.Marshal(xy)
}

// UnmarshalJSON decodes [[x, y], ...].
func (t *Trace) UnmarshalJSON(data []byte) error {
	var xy [][2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return fmt.Errorf("decoding trace: %w", err)
	}
	*t = NewTrace(xy)
	return nil
}
