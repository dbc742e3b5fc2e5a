package geometry

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func ring(cx, cy, r float64, n int) Trace {
	xy := make([][2]float64, n)
	for i := range xy {
		a := 2 * math.Pi * float64(i) / float64(n)
		xy[i] = [2]float64{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	return NewTrace(xy)
}

func TestMinEnclosingCircle_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		xy   [][2]float64
	}{
		{"empty", nil},
		{"one point", [][2]float64{{1, 1}}},
		{"two points", [][2]float64{{0, 0}, {1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MinEnclosingCircle(NewTrace(tt.xy), 10)
			var degenerate *DegenerateGeometryError
			if !errors.As(err, &degenerate) {
				t.Fatalf("MinEnclosingCircle() error = %v, want DegenerateGeometryError", err)
			}
			if degenerate.Points != len(tt.xy) {
				t.Errorf("Points = %d, want %d", degenerate.Points, len(tt.xy))
			}
		})
	}
}

func TestMinEnclosingCircle_Ring(t *testing.T) {
	trace := ring(300, -150, 1000, 360)

	c, err := MinEnclosingCircle(trace, 10)
	if err != nil {
		t.Fatalf("MinEnclosingCircle() error = %v", err)
	}
	if math.Abs(c.Radius-1000) > 1e-6 {
		t.Errorf("Radius = %v, want 1000", c.Radius)
	}
	if math.Abs(c.Center.X-300) > 1e-6 || math.Abs(c.Center.Y+150) > 1e-6 {
		t.Errorf("Center = %v, want (300, -150)", c.Center)
	}
}

func TestMinEnclosingCircle_ContainsExaminedPoints(t *testing.T) {
	traces := map[string]Trace{
		"square": NewTrace([][2]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}),
		"triangle": NewTrace([][2]float64{{-3, 0}, {3, 0}, {0, 1}}),
		"irregular": NewTrace([][2]float64{
			{12, 3}, {15, 9}, {11, 17}, {4, 19}, {-2, 14}, {-5, 6}, {0, -1}, {7, -3},
			{10, 0}, {13, 5}, {14, 12}, {8, 18}, {1, 17}, {-4, 10}, {-3, 2}, {3, -2},
		}),
		"collinear": NewTrace([][2]float64{{0, 0}, {1, 1}, {2, 2}, {5, 5}}),
	}

	for name, trace := range traces {
		for _, stride := range []int{1, 2, 10} {
			t.Run(name, func(t *testing.T) {
				c, err := MinEnclosingCircle(trace, stride)
				if err != nil {
					t.Fatalf("MinEnclosingCircle() error = %v", err)
				}

				examined := trace.DownSample(stride).Points
				if len(examined) < MinContourPoints {
					examined = trace.Points
				}

				maxPair := 0.0
				for i := range examined {
					if !c.Contains(examined[i]) {
						t.Errorf("point %v outside circle %+v", examined[i], c)
					}
					for j := i + 1; j < len(examined); j++ {
						maxPair = math.Max(maxPair, r2.Norm(r2.Sub(examined[i], examined[j])))
					}
				}
				if c.Radius < maxPair/2-1e-9 {
					t.Errorf("Radius = %v, want >= %v", c.Radius, maxPair/2)
				}
			})
		}
	}
}

func TestMinEnclosingCircle_FallsBackWhenDownSampleTooSparse(t *testing.T) {
	trace := NewTrace([][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 12}})

	// stride 10 keeps only the first point, so the whole trace is examined.
	c, err := MinEnclosingCircle(trace, 10)
	if err != nil {
		t.Fatalf("MinEnclosingCircle() error = %v", err)
	}
	for _, p := range trace.Points {
		if !c.Contains(p) {
			t.Errorf("point %v outside circle %+v", p, c)
		}
	}
}

func TestCircleFrom3_Collinear(t *testing.T) {
	c := circleFrom3(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 2, Y: 0}, r2.Vec{X: 6, Y: 0})
	if c.Radius != 3 {
		t.Errorf("Radius = %v, want 3", c.Radius)
	}
	if c.Center != (r2.Vec{X: 3, Y: 0}) {
		t.Errorf("Center = %v, want (3, 0)", c.Center)
	}
}
