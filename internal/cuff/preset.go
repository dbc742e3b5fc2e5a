// Package cuff loads cuff presets from the system catalog.
package cuff

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvandessel/nervepipe/internal/units"
)

// Param is a named dimension expression, e.g. {"name": "R_in_LN",
// "expression": "1000 [um]"}.
type Param struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Preset describes one cuff design. Parameter names carry the preset code as
// a suffix: the inner radius of code "LN" is "R_in_LN".
type Preset struct {
	Name               string  `json:"-"`
	Code               string  `json:"code"`
	Expandable         bool    `json:"expandable"`
	AngleToContactsDeg float64 `json:"angle_to_contacts_deg"`
	Params             []Param `json:"params"`
}

// MissingParamError reports a parameter absent from a preset.
type MissingParamError struct {
	Preset string
	Param  string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("cuff preset %s: no parameter %q", e.Preset, e.Param)
}

// Load reads and validates the preset at path. name is the catalog entry the
// preset was requested by and is used in errors.
func Load(path, name string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cuff preset: %w", err)
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing cuff preset %s: %w", name, err)
	}
	p.Name = name
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// MaxCodeLen is the longest preset code; parameter names end in "_<code>".
const MaxCodeLen = 2

// Validate checks the preset code is one or two letters.
func (p *Preset) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("cuff preset %s: code is required", p.Name)
	}
	if len(p.Code) > MaxCodeLen {
		return fmt.Errorf("cuff preset %s: code %q is longer than %d letters", p.Name, p.Code, MaxCodeLen)
	}
	for _, r := range p.Code {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return fmt.Errorf("cuff preset %s: code %q must be letters only", p.Name, p.Code)
		}
	}
	return nil
}

// Param returns the expression of "<base>_<code>".
func (p *Preset) Param(base string) (string, error) {
	name := base + "_" + p.Code
	for _, param := range p.Params {
		if param.Name == name {
			return param.Expression, nil
		}
	}
	return "", &MissingParamError{Preset: p.Name, Param: name}
}

// Length returns "<base>_<code>" in micrometers.
func (p *Preset) Length(base string) (float64, error) {
	expr, err := p.Param(base)
	if err != nil {
		return 0, err
	}
	v, err := units.ParseLength(expr)
	if err != nil {
		return 0, fmt.Errorf("cuff preset %s: %s: %w", p.Name, base+"_"+p.Code, err)
	}
	return v, nil
}
