package geometry

import (
	"encoding/json"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func square(side float64) Trace {
	return NewTrace([][2]float64{{0, 0}, {side, 0}, {side, side}, {0, side}})
}

func TestTrace_DownSample(t *testing.T) {
	xy := make([][2]float64, 25)
	for i := range xy {
		xy[i] = [2]float64{float64(i), 0}
	}
	trace := NewTrace(xy)

	tests := []struct {
		stride int
		want   []float64
	}{
		{10, []float64{0, 10, 20}},
		{7, []float64{0, 7, 14, 21}},
		{1, nil},
		{0, nil},
	}

	for _, tt := range tests {
		got := trace.DownSample(tt.stride)
		if tt.want == nil {
			if got.Len() != trace.Len() {
				t.Errorf("DownSample(%d).Len() = %d, want %d", tt.stride, got.Len(), trace.Len())
			}
			continue
		}
		if got.Len() != len(tt.want) {
			t.Fatalf("DownSample(%d).Len() = %d, want %d", tt.stride, got.Len(), len(tt.want))
		}
		for i, x := range tt.want {
			if got.Points[i].X != x {
				t.Errorf("DownSample(%d)[%d].X = %v, want %v", tt.stride, i, got.Points[i].X, x)
			}
		}
	}

	// The source trace must not be modified.
	sampled := trace.DownSample(1)
	sampled.Points[0].X = 99
	if trace.Points[0].X != 0 {
		t.Error("DownSample shares memory with the source trace")
	}
}

func TestTrace_AreaAndCentroid(t *testing.T) {
	sq := square(4)
	if got := sq.Area(); got != 16 {
		t.Errorf("Area() = %v, want 16", got)
	}
	if got := sq.Centroid(); got != (r2.Vec{X: 2, Y: 2}) {
		t.Errorf("Centroid() = %v, want (2, 2)", got)
	}

	// Clockwise order gives the same area.
	cw := NewTrace([][2]float64{{0, 0}, {0, 4}, {4, 4}, {4, 0}})
	if got := cw.Area(); got != 16 {
		t.Errorf("clockwise Area() = %v, want 16", got)
	}

	line := NewTrace([][2]float64{{0, 0}, {2, 0}, {4, 0}})
	if got := line.Centroid(); got != (r2.Vec{X: 2, Y: 0}) {
		t.Errorf("degenerate Centroid() = %v, want (2, 0)", got)
	}
}

func TestTrace_Contains(t *testing.T) {
	sq := square(10)
	tests := []struct {
		p    r2.Vec
		want bool
	}{
		{r2.Vec{X: 5, Y: 5}, true},
		{r2.Vec{X: 0.1, Y: 9.9}, true},
		{r2.Vec{X: -1, Y: 5}, false},
		{r2.Vec{X: 5, Y: 11}, false},
	}
	for _, tt := range tests {
		if got := sq.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTrace_ScaleTranslate(t *testing.T) {
	sq := square(2)

	scaled := sq.Scale(2)
	if math.Abs(scaled.Area()-16) > 1e-12 {
		t.Errorf("Scale(2).Area() = %v, want 16", scaled.Area())
	}
	if scaled.Centroid() != sq.Centroid() {
		t.Errorf("Scale moved centroid: %v -> %v", sq.Centroid(), scaled.Centroid())
	}

	moved := sq.Translate(3, -1)
	if got := moved.Centroid(); got != (r2.Vec{X: 4, Y: 0}) {
		t.Errorf("Translate centroid = %v, want (4, 0)", got)
	}

	box := moved.Bounds()
	if box.Min != (r2.Vec{X: 3, Y: -1}) || box.Max != (r2.Vec{X: 5, Y: 1}) {
		t.Errorf("Bounds() = %+v", box)
	}
}

func TestTrace_JSON(t *testing.T) {
	data, err := json.Marshal(square(1))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "[[0,0],[1,0],[1,1],[0,1]]" {
		t.Errorf("Marshal() = %s", data)
	}

	var back Trace
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Len() != 4 || back.Points[2] != (r2.Vec{X: 1, Y: 1}) {
		t.Errorf("Unmarshal() = %+v", back)
	}
}
