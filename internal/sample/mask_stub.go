//go:build !gocv

package sample

import "fmt"

func newMaskSource() (TraceSource, error) {
	return nil, fmt.Errorf("mask input mode %s requires a build with -tags gocv", InputMasks)
}
