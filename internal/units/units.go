// Package units parses dimensioned quantities found in cuff presets and
// model configs. Lengths are normalized to micrometers, frequencies to hertz.
package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports an expression that is not a number followed by a known
// unit.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse quantity %q: %s", e.Expr, e.Reason)
}

// micrometers per unit
var lengthScale = map[string]float64{
	"m":      1e6,
	"cm":     1e4,
	"mm":     1e3,
	"um":     1,
	"µm":     1,
	"μm":     1,
	"micron": 1,
	"nm":     1e-3,
	"in":     25400,
	"mil":    25.4,
	"ft":     304800,
}

// hertz per unit
var frequencyScale = map[string]float64{
	"hz":  1,
	"khz": 1e3,
	"mhz": 1e6,
}

var quantityRE = regexp.MustCompile(`^([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)(.*)$`)

// ParseLength converts an expression like "0.003 [in]" to micrometers.
// Whitespace and square brackets are ignored, so "0.003[in]" and
// " 0.003 [in] " parse identically. A bare number is taken as micrometers.
func ParseLength(expr string) (float64, error) {
	value, unit, err := split(expr)
	if err != nil {
		return 0, err
	}
	if unit == "" {
		return value, nil
	}
	scale, ok := lengthScale[unit]
	if !ok {
		return 0, &ParseError{Expr: expr, Reason: fmt.Sprintf("unknown length unit %q", unit)}
	}
	return value * scale, nil
}

// ParseFrequency converts value in unit (Hz, kHz, MHz, case-insensitive) to
// hertz.
func ParseFrequency(value float64, unit string) (float64, error) {
	key := strings.ToLower(strings.TrimSpace(unit))
	scale, ok := frequencyScale[key]
	if !ok {
		return 0, &ParseError{Expr: unit, Reason: "unknown frequency unit"}
	}
	return value * scale, nil
}

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func split(expr string) (float64, string, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '[', ']':
			return -1
		}
		return r
	}, expr)
	if compact == "" {
		return 0, "", &ParseError{Expr: expr, Reason: "empty expression"}
	}

	m := quantityRE.FindStringSubmatch(compact)
	if m == nil {
		return 0, "", &ParseError{Expr: expr, Reason: "no leading number"}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", &ParseError{Expr: expr, Reason: err.Error()}
	}
	return value, m[2], nil
}
