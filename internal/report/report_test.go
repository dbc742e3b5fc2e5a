package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/nervepipe/internal/logging"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	events := logging.OpenEventLog(dir, "debug")
	defer events.Close()

	r := NewLogReporter(logging.NewLogger("info", &buf), events)
	r.Report(context.Background(), errors.New("cuff too small"), slog.Int("sample", 0), slog.Int("model", 2))
	r.Report(context.Background(), nil)

	out := buf.String()
	if !strings.Contains(out, "cuff too small") || !strings.Contains(out, "model=2") {
		t.Errorf("log output = %q", out)
	}
	if strings.Count(out, "level=ERROR") != 1 {
		t.Errorf("expected exactly one error line, got %q", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, logging.EventsFile))
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if !strings.Contains(string(data), `"error":"cuff too small"`) {
		t.Errorf("event log = %s", data)
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	c.Report(context.Background(), errors.New("a"))
	c.Report(context.Background(), nil)
	if len(c.Errors) != 1 {
		t.Errorf("Errors = %v", c.Errors)
	}
}
