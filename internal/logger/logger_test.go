package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog/log"
)

func TestInitWritesJSONToFileAndStdout(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	var out bytes.Buffer
	if err := Init(Options{Level: "info", File: file, MaxSizeMB: 1, Stdout: &out}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Str("entry_id", "abc").Msg("entry added")

	var ev map[string]any
	line := strings.TrimSpace(out.String())
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", line, err)
	}
	if ev["entry_id"] != "abc" || ev["message"] != "entry added" {
		t.Fatalf("unexpected event %v", ev)
	}
	b, err := os.ReadFile(file)
	if err != nil || !strings.Contains(string(b), "entry added") {
		t.Fatalf("log file missing event: %q (%v)", b, err)
	}
}

func TestInitFallsBackToInfo(t *testing.T) {
	var out bytes.Buffer
	if err := Init(Options{Level: "loud", Stdout: &out}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	log.Debug().Msg("hidden")
	if out.Len() != 0 {
		t.Fatalf("debug event written at info level: %q", out.String())
	}
}

func TestAxiomEvent(t *testing.T) {
	if ev := axiomEvent([]byte(`{"level":"debug","message":"x"}`), "svc"); ev != nil {
		t.Fatalf("debug events should be dropped, got %v", ev)
	}
	ev := axiomEvent([]byte(`{"level":"info","message":"x"}`), "svc")
	if ev["service"] != "svc" || ev[ingest.TimestampField] == nil {
		t.Fatalf("unexpected event %v", ev)
	}
	raw := axiomEvent([]byte("not json"), "svc")
	if raw["message"] != "not json" || raw["level"] != "info" {
		t.Fatalf("unexpected raw event %v", raw)
	}
}
