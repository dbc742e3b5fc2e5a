//go:build gocv

package sample

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/nervepipe/internal/geometry"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// Binary mask files inside a slide's masks directory.
const (
	nerveMask = "n.tif"
	outerMask = "o.tif"
	innerMask = "i.tif"
)

// MaskSource extracts contours from binary TIFF masks with OpenCV.
type MaskSource struct{}

func newMaskSource() (TraceSource, error) {
	return MaskSource{}, nil
}

// Load implements TraceSource. The nerve mask is optional; outers are
// required. Each inner is assigned to the outer containing its first point.
func (MaskSource) Load(ctx context.Context, masksDir string) (Contours, error) {
	var c Contours

	nervePath := filepath.Join(masksDir, nerveMask)
	if _, err := os.Stat(nervePath); err == nil {
		nerves, err := maskContours(nervePath)
		if err != nil {
			return Contours{}, err
		}
		if len(nerves) > 0 {
			largest := nerves[0]
			for _, n := range nerves[1:] {
				if n.Area() > largest.Area() {
					largest = n
				}
			}
			c.Nerve = &largest
		}
	}
	if err := ctx.Err(); err != nil {
		return Contours{}, err
	}

	outers, err := maskContours(filepath.Join(masksDir, outerMask))
	if err != nil {
		return Contours{}, err
	}
	for _, o := range outers {
		c.Fascicles = append(c.Fascicles, Fascicle{Outer: o})
	}

	innerPath := filepath.Join(masksDir, innerMask)
	if _, err := os.Stat(innerPath); err != nil {
		return c, nil
	}
	inners, err := maskContours(innerPath)
	if err != nil {
		return Contours{}, err
	}
	for _, in := range inners {
		if in.Len() == 0 {
			continue
		}
		for i := range c.Fascicles {
			if c.Fascicles[i].Outer.Contains(in.Points[0]) {
				c.Fascicles[i].Inners = append(c.Fascicles[i].Inners, in)
				break
			}
		}
	}
	return c, nil
}

func maskContours(path string) ([]geometry.Trace, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayscale)
	if img.Empty() {
		return nil, fmt.Errorf("reading mask %s: empty or unreadable image", filepath.Base(path))
	}
	defer img.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(img, &binary, 127, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	traces := make([]geometry.Trace, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) == 0 {
			continue
		}
		pts := contour.ToPoints()
		t := geometry.Trace{Points: make([]r2.Vec, len(pts))}
		for j, p := range pts {
			t.Points[j] = r2.Vec{X: float64(p.X), Y: float64(p.Y)}
		}
		traces = append(traces, t)
	}
	return traces, nil
}
