package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// MinContourPoints is the smallest contour the enclosing-circle solver accepts.
const MinContourPoints = 3

// containTol is the relative slack used when testing circle membership.
const containTol = 1e-9

// DegenerateGeometryError is returned when a contour has too few points to
// bound.
type DegenerateGeometryError struct {
	Points int
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("degenerate contour: %d points, need at least %d", e.Points, MinContourPoints)
}

// Circle is a center and radius in the trace's coordinate frame.
type Circle struct {
	Center r2.Vec
	Radius float64
}

// Contains reports whether p lies inside or on the circle.
func (c Circle) Contains(p r2.Vec) bool {
	return r2.Norm(r2.Sub(p, c.Center)) <= c.Radius+containTol*math.Max(1, c.Radius)
}

// MinEnclosingCircle bounds a down-sampled copy of t (every stride-th point).
// If down-sampling leaves fewer than MinContourPoints points the full trace is
// used instead.
//
// The construction is the deterministic incremental one, run in contour
// order without shuffling. The result contains every examined point; callers
// should treat it as a conservative bound rather than rely on it being the
// tightest circle for the original dense contour.
func MinEnclosingCircle(t Trace, stride int) (Circle, error) {
	if t.Len() < MinContourPoints {
		return Circle{}, &DegenerateGeometryError{Points: t.Len()}
	}
	pts := t.DownSample(stride).Points
	if len(pts) < MinContourPoints {
		pts = t.Points
	}
	return enclose(pts), nil
}

func enclose(pts []r2.Vec) Circle {
	c := Circle{Center: pts[0]}
	for i := 1; i < len(pts); i++ {
		if c.Contains(pts[i]) {
			continue
		}
		c = Circle{Center: pts[i]}
		for j := 0; j < i; j++ {
			if c.Contains(pts[j]) {
				continue
			}
			c = circleFrom2(pts[i], pts[j])
			for k := 0; k < j; k++ {
				if c.Contains(pts[k]) {
					continue
				}
				c = circleFrom3(pts[i], pts[j], pts[k])
			}
		}
	}
	return c
}

func circleFrom2(a, b r2.Vec) Circle {
	center := r2.Scale(0.5, r2.Add(a, b))
	return Circle{Center: center, Radius: r2.Norm(r2.Sub(a, center))}
}

// circleFrom3 returns the circumcircle of a, b and c. The center offset u from
// a satisfies 2u·(b-a) = |b-a|² and 2u·(c-a) = |c-a|²; collinear points have
// no circumcircle and get the widest two-point circle instead.
func circleFrom3(a, b, c r2.Vec) Circle {
	ab := r2.Sub(b, a)
	ac := r2.Sub(c, a)
	scale := math.Max(r2.Norm2(ab), r2.Norm2(ac))
	if scale == 0 || math.Abs(r2.Cross(ab, ac)) <= containTol*scale {
		return widest(a, b, c)
	}

	lhs := mat.NewDense(2, 2, []float64{
		2 * ab.X, 2 * ab.Y,
		2 * ac.X, 2 * ac.Y,
	})
	rhs := mat.NewVecDense(2, []float64{r2.Norm2(ab), r2.Norm2(ac)})
	var u mat.VecDense
	if err := u.SolveVec(lhs, rhs); err != nil {
		return widest(a, b, c)
	}

	center := r2.Add(a, r2.Vec{X: u.AtVec(0), Y: u.AtVec(1)})
	return Circle{Center: center, Radius: r2.Norm(r2.Sub(a, center))}
}

func widest(a, b, c r2.Vec) Circle {
	best := circleFrom2(a, b)
	for _, cand := range []Circle{circleFrom2(a, c), circleFrom2(b, c)} {
		if cand.Radius > best.Radius {
			best = cand
		}
	}
	return best
}
