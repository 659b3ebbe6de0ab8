package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestLoggerWritesEngineLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	if err := logger.Info(CategoryResolver, "pattern_matched", "matched shop.create_product", map[string]any{
		"action": "shop.create_product",
	}); err != nil {
		t.Fatalf("Info: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "engine.jsonl"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Category != CategoryResolver {
		t.Errorf("Category = %v, want %v", events[0].Category, CategoryResolver)
	}
	if events[0].EventType != "pattern_matched" {
		t.Errorf("EventType = %v, want pattern_matched", events[0].EventType)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Timestamp should be stamped automatically")
	}
	if events[0].Details["action"] != "shop.create_product" {
		t.Errorf("Details[action] = %v", events[0].Details["action"])
	}
}

func TestLoggerMirrorsErrorsToErrorLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Info(CategoryDispatch, "handler_start", "starting", nil)
	logger.Error(CategoryDispatch, "handler_fault", "handler panicked", nil)

	engine := readEvents(t, filepath.Join(dir, "engine.jsonl"))
	if len(engine) != 2 {
		t.Fatalf("engine log: got %d events, want 2", len(engine))
	}

	errs := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errs) != 1 {
		t.Fatalf("error log: got %d events, want 1", len(errs))
	}
	if errs[0].Level != LevelError {
		t.Errorf("Level = %v, want error", errs[0].Level)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	// Default min level is info; debug should be dropped.
	logger.Debug(CategoryLLM, "prompt_built", "dropped", nil)
	logger.Info(CategoryLLM, "parse_ok", "kept", nil)

	events := readEvents(t, filepath.Join(dir, "engine.jsonl"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryLLM, "prompt_built", "kept now", nil)

	events = readEvents(t, filepath.Join(dir, "engine.jsonl"))
	if len(events) != 2 {
		t.Fatalf("after SetMinLevel: got %d events, want 2", len(events))
	}
}
