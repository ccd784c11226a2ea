package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestNewJSONHandlerWritesToOutput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	log := New(Options{Format: FormatJSON, Level: slog.LevelInfo, Output: w})
	log.Info("hello", slog.String("k", "v"))
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["msg"] != "hello" || decoded["k"] != "v" {
		t.Fatalf("unexpected fields: %+v", decoded)
	}
}

func TestWithCorrelationAddsField(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	base := New(Options{Format: FormatJSON, Level: slog.LevelInfo, Output: w})
	scoped := WithCorrelation(base, "sess-abc")
	scoped.Info("tick")
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if !strings.Contains(buf.String(), "sess-abc") {
		t.Fatalf("expected correlation id in output, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	log := Discard()
	ctx := IntoContext(context.Background(), log)
	got := FromContext(ctx)
	if got != log {
		t.Fatalf("expected FromContext to return the stashed logger")
	}

	plain := FromContext(context.Background())
	if plain == nil {
		t.Fatalf("expected a default logger when none is stashed")
	}
}
