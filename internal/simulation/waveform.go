package simulation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/nervepipe/internal/document"
)

// Waveform modes (sim config modes.waveform).
const (
	MonophasicPulseTrain = "MONOPHASIC_PULSE_TRAIN"
	BiphasicPulseTrain   = "BIPHASIC_PULSE_TRAIN"
	Sinusoid             = "SINUSOID"
)

// Waveform is one written stimulation waveform.
type Waveform struct {
	Index  int                `json:"index"`
	Mode   string             `json:"mode"`
	Values map[string]float64 `json:"values"`
	File   string             `json:"file"`
}

// timing is waveform.global: sample step, stimulation window and total
// duration, all in milliseconds.
type timing struct {
	dt, on, off, stop float64
}

func readTiming(doc document.Doc) (timing, error) {
	var t timing
	var err error
	if t.dt, err = doc.Float("waveform", "global", "dt"); err != nil {
		return t, err
	}
	if t.on, err = doc.Float("waveform", "global", "on"); err != nil {
		return t, err
	}
	if t.off, err = doc.Float("waveform", "global", "off"); err != nil {
		return t, err
	}
	if t.stop, err = doc.Float("waveform", "global", "stop"); err != nil {
		return t, err
	}
	if t.dt <= 0 || t.stop <= 0 {
		return t, fmt.Errorf("waveform.global: dt and stop must be positive")
	}
	if t.on < 0 || t.off < t.on {
		return t, fmt.Errorf("waveform.global: need 0 <= on <= off")
	}
	return t, nil
}

// generate samples the waveform described by doc.
func generate(doc document.Doc, mode string) (timing, []float64, error) {
	tm, err := readTiming(doc)
	if err != nil {
		return tm, nil, err
	}

	param := func(name string) (float64, error) {
		v, err := doc.Float("waveform", mode, name)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("waveform.%s.%s must not be negative", mode, name)
		}
		return v, nil
	}

	prf, err := param("pulse_repetition_freq")
	if err != nil {
		return tm, nil, err
	}
	if prf == 0 {
		return tm, nil, fmt.Errorf("waveform.%s.pulse_repetition_freq must be positive", mode)
	}
	periodMs := 1000 / prf

	var shape func(phase float64) float64
	switch mode {
	case MonophasicPulseTrain:
		pw, err := param("pulse_width")
		if err != nil {
			return tm, nil, err
		}
		shape = func(phase float64) float64 {
			if phase < pw {
				return 1
			}
			return 0
		}
	case BiphasicPulseTrain:
		pw, err := param("pulse_width")
		if err != nil {
			return tm, nil, err
		}
		gap, err := param("inter_phase")
		if err != nil {
			return tm, nil, err
		}
		shape = func(phase float64) float64 {
			switch {
			case phase < pw:
				return 1
			case phase < pw+gap:
				return 0
			case phase < 2*pw+gap:
				return -1
			}
			return 0
		}
	case Sinusoid:
		shape = func(phase float64) float64 {
			return math.Sin(2 * math.Pi * phase / periodMs)
		}
	default:
		return tm, nil, fmt.Errorf("unknown waveform mode %q", mode)
	}

	n := int(math.Round(tm.stop / tm.dt))
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) * tm.dt
		if t < tm.on || t >= tm.off {
			continue
		}
		samples[i] = shape(math.Mod(t-tm.on, periodMs))
	}
	return tm, samples, nil
}

// WriteWaveforms writes waveforms/<i>.dat under dir for every combination
// of waveform factors. Each file holds dt, the sample count and one sample
// per line.
func (s *Simulation) WriteWaveforms(dir string) error {
	if err := s.advance(2, "WriteWaveforms"); err != nil {
		return err
	}
	mode, err := s.Sim.String("modes", "waveform")
	if err != nil {
		return fmt.Errorf("simulation %d: %w", s.SimID, err)
	}

	factors := s.factorsUnder("waveform")
	s.Waveforms = nil
	for i, combo := range combinations(factors) {
		doc, values := s.concrete(factors, combo)
		tm, samples, err := generate(doc, mode)
		if err != nil {
			return fmt.Errorf("simulation %d waveform %d: %w", s.SimID, i, err)
		}

		rel := filepath.ToSlash(filepath.Join("waveforms", strconv.Itoa(i)+".dat"))
		if err := writeSamples(filepath.Join(dir, filepath.FromSlash(rel)), tm.dt, samples); err != nil {
			return err
		}
		s.Waveforms = append(s.Waveforms, Waveform{Index: i, Mode: mode, Values: values, File: rel})
	}
	return nil
}

func writeSamples(path string, dt float64, samples []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating waveform directory: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(dt, 'f', -1, 64))
	sb.WriteByte('\n')
	sb.WriteString(strconv.Itoa(len(samples)))
	sb.WriteByte('\n')
	for _, v := range samples {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing waveform: %w", err)
	}
	return nil
}
