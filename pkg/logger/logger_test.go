package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
	if Slog() == nil {
		t.Fatal("slog logger is nil after initialization")
	}
}

func TestConfigureRejectsUnknownValues(t *testing.T) {
	if err := Configure("loud", "text"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
	if err := Configure("info", "xml"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
	_ = Init()
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, "debug", "json"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	defer func() { _ = Init() }()

	l := Named("worker").With(String("queue", "analysis"))
	l.Info(context.Background(), "job done",
		Uint64("fixture_id", 42),
		Duration("took", 1500*time.Millisecond),
		Bool("retroactive", true),
		Error(errors.New("boom")),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if line["component"] != "worker" || line["queue"] != "analysis" {
		t.Fatalf("missing inherited fields: %v", line)
	}
	if line["error"] != "boom" {
		t.Fatalf("error not rendered as string: %v", line["error"])
	}
	if src, _ := line["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Fatalf("source should point at the caller, got %q", src)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, "warn", "text"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	defer func() { _ = Init() }()

	Get().Info(context.Background(), "hidden")
	Get().Warn(context.Background(), "shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatal("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("warn line missing")
	}
}
