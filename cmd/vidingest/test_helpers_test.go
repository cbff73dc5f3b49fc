package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidingest/internal/config"
	"vidingest/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	for key, value := range map[string]string{
		"HOME":                 filepath.Join(base, "home"),
		"YOUTUBE_API_KEY":      "",
		"VIDINGEST_REDIS_ADDR": "",
	} {
		t.Setenv(key, value)
	}
	if err := os.MkdirAll(os.Getenv("HOME"), 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// runCLI executes the root command in-process and returns what it printed.
func runCLI(t *testing.T, args []string, configPath string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

// writeTestConfig points every path at the test's temp tree, keeps logs
// quiet, and disables Redis so commands never reach the network.
func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	doc := map[string]any{
		"paths": map[string]string{
			"storage_root": cfg.Paths.StorageRoot,
			"model_dir":    cfg.Paths.ModelDir,
			"state_dir":    cfg.Paths.StateDir,
			"log_dir":      cfg.Paths.LogDir,
		},
		"logging":  map[string]string{"level": "error"},
		"progress": map[string]bool{"redis_enabled": false},
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
