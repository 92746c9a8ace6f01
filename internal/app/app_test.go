package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("SHEET_API_URL", "https://script.google.com/macros/s/test/exec")
	t.Setenv("AI_BASE_URL", "https://ai.example.com")
	t.Setenv("BASE_URL", "http://localhost:8080")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.SheetAPIURL != "https://script.google.com/macros/s/test/exec" {
		t.Errorf("SheetAPIURL = %q, want https://script.google.com/...", cfg.SheetAPIURL)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	// Clear all required env vars
	t.Setenv("SHEET_API_URL", "")
	t.Setenv("AI_BASE_URL", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestBuildCore_MemoryBackend(t *testing.T) {
	t.Setenv("SHEET_API_URL", "https://script.google.com/macros/s/test/exec")
	t.Setenv("AI_BASE_URL", "https://ai.example.com")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("CACHE_BACKEND", "memory")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	c, err := buildCore(cfg)
	if err != nil {
		t.Fatalf("buildCore failed: %v", err)
	}
	defer c.close()

	if c.store == nil {
		t.Error("store should be initialized")
	}
	// インメモリバックエンドではキャッシュの疎通確認を行わない
	if c.cacheHealth != nil {
		t.Error("cacheHealth should be nil for memory backend")
	}
	if c.loc.String() != "Asia/Kolkata" {
		t.Errorf("timezone = %q, want Asia/Kolkata", c.loc.String())
	}
}
