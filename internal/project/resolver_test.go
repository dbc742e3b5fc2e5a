package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLayout_Paths(t *testing.T) {
	l := Layout{Root: "/proj"}

	tests := []struct {
		got  string
		want string
	}{
		{l.SampleConfig(0), "/proj/samples/0/sample.json"},
		{l.SampleCheckpoint(0), "/proj/samples/0/sample.obj"},
		{l.ModelConfig(0, 2), "/proj/samples/0/models/2/model.json"},
		{l.SimDir(0, 2, 5), "/proj/samples/0/models/2/sims/5"},
		{l.SimCheckpoint(0, 2, 5), "/proj/samples/0/models/2/sims/5/sim.obj"},
		{l.SimConfig(5), "/proj/config/user/sims/5.json"},
		{l.SlideMasks(0, 1, 3), "/proj/samples/0/slides/1/3/masks"},
	}
	for _, tt := range tests {
		if filepath.ToSlash(tt.got) != tt.want {
			t.Errorf("path = %s, want %s", tt.got, tt.want)
		}
	}

	rel, err := l.Rel(l.SimCheckpoint(0, 2, 5))
	if err != nil || rel != "samples/0/models/2/sims/5/sim.obj" {
		t.Errorf("Rel() = %q, %v", rel, err)
	}
}

func TestLayout_RunConfigEscape(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if _, err := l.RunConfig("../../../etc/passwd"); err == nil {
		t.Error("RunConfig() accepted a name leaving the project root")
	}
	if _, err := l.CuffPreset("LivaNova.json"); err != nil {
		t.Errorf("CuffPreset() error = %v", err)
	}
}

func TestRunSpec(t *testing.T) {
	root := t.TempDir()
	r := NewFileResolver(Layout{Root: root})
	writeFile(t, filepath.Join(root, "config", "user", "runs", "r1.json"),
		`{"sample": 3, "models": [0, 2], "sims": [7], "keep": true}`)

	spec, err := r.RunSpec("r1")
	if err != nil {
		t.Fatalf("RunSpec() error = %v", err)
	}
	want := RunSpec{
		Name:   "r1",
		Path:   filepath.Join(root, "config", "user", "runs", "r1.json"),
		Sample: 3,
		Models: []int{0, 2},
		Sims:   []int{7},
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Errorf("RunSpec() mismatch (-want +got):\n%s", diff)
	}

	_, err = r.RunSpec("absent")
	var mce *MissingConfigError
	if !errors.As(err, &mce) {
		t.Errorf("RunSpec(absent) error = %v, want MissingConfigError", err)
	}
}

func TestLoadConfigs_ReportsEveryMissingFile(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}
	r := NewFileResolver(l)
	writeFile(t, l.SampleConfig(0), `{}`)
	writeFile(t, l.ModelConfig(0, 0), `{}`)
	writeFile(t, l.SimConfig(0), `{}`)

	spec := RunSpec{Name: "r", Sample: 0, Models: []int{0, 1}, Sims: []int{0, 4}}
	_, err := r.LoadConfigs(spec)

	var mce *MissingConfigError
	if !errors.As(err, &mce) {
		t.Fatalf("LoadConfigs() error = %v, want MissingConfigError", err)
	}
	want := []string{l.ModelConfig(0, 1), l.SimConfig(4)}
	if diff := cmp.Diff(want, mce.Paths); diff != "" {
		t.Errorf("Paths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigs_RunOrder(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}
	r := NewFileResolver(l)
	writeFile(t, l.SampleConfig(1), `{"modes": {"nerve": "PRESENT"}}`)
	writeFile(t, l.ModelConfig(1, 4), `{"name": "four"}`)
	writeFile(t, l.ModelConfig(1, 2), `{"name": "two"}`)
	writeFile(t, l.SimConfig(9), `{"name": "nine"}`)

	cfgs, err := r.LoadConfigs(RunSpec{Sample: 1, Models: []int{4, 2}, Sims: []int{9}})
	if err != nil {
		t.Fatalf("LoadConfigs() error = %v", err)
	}
	if len(cfgs.Models) != 2 || cfgs.Models[0].ID != 4 || cfgs.Models[1].ID != 2 {
		t.Errorf("Models = %+v, want run order 4, 2", cfgs.Models)
	}
	if name, _ := cfgs.Models[1].Doc.String("name"); name != "two" {
		t.Errorf("model 2 name = %q", name)
	}
	if len(cfgs.Sims) != 1 || cfgs.Sims[0].ID != 9 {
		t.Errorf("Sims = %+v", cfgs.Sims)
	}
}

func TestCuffPreset(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}
	r := NewFileResolver(l)
	path, _ := l.CuffPreset("Purdue.json")
	writeFile(t, path, `{"code": "P", "expandable": true, "angle_to_contacts_deg": 0, "params": []}`)

	p, err := r.CuffPreset("Purdue.json")
	if err != nil {
		t.Fatalf("CuffPreset() error = %v", err)
	}
	if p.Name != "Purdue.json" || p.Code != "P" || !p.Expandable {
		t.Errorf("preset = %+v", p)
	}

	_, err = r.CuffPreset("Absent.json")
	var mce *MissingConfigError
	if !errors.As(err, &mce) {
		t.Errorf("CuffPreset(absent) error = %v, want MissingConfigError", err)
	}
}
