package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vidingest/internal/testsupport"
)

func TestSelectModelForDuration(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		seconds string
		want    string
	}{
		{"120", "tiny"},
		{"900", "base"},
		{"7200", "small"},
	}
	for _, tt := range tests {
		out, _, err := runCLI(t, []string{"--json", "select-model", tt.seconds}, env.configPath)
		if err != nil {
			t.Fatalf("select-model %s: %v", tt.seconds, err)
		}
		var payload struct {
			Tier string `json:"tier"`
		}
		if err := json.Unmarshal([]byte(out), &payload); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		if payload.Tier != tt.want {
			t.Fatalf("select-model %s = %s, want %s", tt.seconds, payload.Tier, tt.want)
		}
	}

	if _, _, err := runCLI(t, []string{"select-model", "--", "-5"}, env.configPath); err == nil {
		t.Fatal("expected negative duration to fail")
	}
}

func TestIngestRequiresOneInput(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"ingest"}, env.configPath); err == nil {
		t.Fatal("expected ingest without input to fail")
	}
	if _, _, err := runCLI(t, []string{"ingest", "dQw4w9WgXcQ", "--file", "x.mp4"}, env.configPath); err == nil {
		t.Fatal("expected ingest with two inputs to fail")
	}
}

func TestModelImportAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "downloaded.bin")
	testsupport.WriteFile(t, source, 4096)

	out, _, err := runCLI(t, []string{"model", "import", "tiny", source}, env.configPath)
	if err != nil {
		t.Fatalf("model import: %v", err)
	}
	requireContains(t, out, "Imported tiny model")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ModelDir, "ggml-tiny.bin")); err != nil {
		t.Fatalf("expected imported model: %v", err)
	}

	out, _, err = runCLI(t, []string{"--json", "model", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	var entries []struct {
		Tier    string `json:"tier"`
		Present bool   `json:"present"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	for _, e := range entries {
		if e.Present != (e.Tier == "tiny") {
			t.Fatalf("unexpected presence for %s: %v", e.Tier, e.Present)
		}
	}

	if _, _, err := runCLI(t, []string{"model", "import", "huge", source}, env.configPath); err == nil {
		t.Fatal("expected unknown tier to fail")
	}
}

func TestStorageStatsAndPurge(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.StorageRoot, "dQw4w9WgXcQ", "audio.wav"), 2048)

	out, _, err := runCLI(t, []string{"--json", "storage", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("storage stats: %v", err)
	}
	var stats struct {
		TotalFiles int   `json:"total_files"`
		TotalBytes int64 `json:"total_bytes"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if stats.TotalFiles != 1 || stats.TotalBytes != 2048 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	out, _, err = runCLI(t, []string{"storage", "purge", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, env.configPath)
	if err != nil {
		t.Fatalf("storage purge: %v", err)
	}
	requireContains(t, out, "Removed 1 file(s) for dQw4w9WgXcQ")

	out, _, err = runCLI(t, []string{"storage", "sweep"}, env.configPath)
	if err != nil {
		t.Fatalf("storage sweep: %v", err)
	}
	requireContains(t, out, "Deleted 0 file(s)")
}

func TestTableFallsBackToTabsWhenPiped(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"model", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	requireContains(t, out, "Tier\tPresent\tSize\tPath")
}
