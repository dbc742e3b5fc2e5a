package cuff

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/nervepipe/internal/units"
)

const livaNovaJSON = `{
  "code": "LN",
  "expandable": false,
  "angle_to_contacts_deg": 90,
  "params": [
    {"name": "thk_medium_gap_internal_LN", "expression": "100 [um]"},
    {"name": "r_cuff_in_pre_LN", "expression": "0.003[in]"},
    {"name": "R_in_LN", "expression": "1 [mm]"},
    {"name": "R_in_XX", "expression": "9 [mm]"}
  ]
}`

func writePreset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "LivaNova.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Lengths(t *testing.T) {
	p, err := Load(writePreset(t, livaNovaJSON), "LivaNova.json")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		base string
		want float64
	}{
		{"thk_medium_gap_internal", 100},
		{"r_cuff_in_pre", 76.2},
		{"R_in", 1000},
	}
	for _, tt := range tests {
		got, err := p.Length(tt.base)
		if err != nil {
			t.Fatalf("Length(%q) error = %v", tt.base, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Length(%q) = %v, want %v", tt.base, got, tt.want)
		}
	}
	if p.AngleToContactsDeg != 90 || p.Expandable {
		t.Errorf("preset fields = %+v", p)
	}
}

func TestParam_Missing(t *testing.T) {
	p := &Preset{Name: "Purdue.json", Code: "P"}
	_, err := p.Length("R_in")
	var me *MissingParamError
	if !errors.As(err, &me) {
		t.Fatalf("Length() error = %v, want MissingParamError", err)
	}
	if me.Param != "R_in_P" {
		t.Errorf("Param = %q, want R_in_P", me.Param)
	}
}

func TestLength_BadExpression(t *testing.T) {
	p := &Preset{Name: "x.json", Code: "X", Params: []Param{{Name: "R_in_X", Expression: "wide"}}}
	_, err := p.Length("R_in")
	var pe *units.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Length() error = %v, want units.ParseError", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"LN", false},
		{"P", false},
		{"", true},
		{"L1", true},
		{"L_N", true},
		{"ITI", true},
		{"Pitt", true},
	}
	for _, tt := range tests {
		p := &Preset{Name: "c.json", Code: tt.code}
		if err := p.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
		}
	}
}
