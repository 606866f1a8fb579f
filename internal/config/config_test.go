package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  api_key: sk-test
  model: claude-sonnet-4-5
engine:
  repair_limit: 5
  output_budget: 4000
storage:
  data_dir: /tmp/stagehand-test
audit:
  enabled: true
  path: /tmp/audit.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Engine.RepairLimit != 5 || cfg.Engine.OutputBudget != 4000 {
		t.Errorf("engine config = %+v", cfg.Engine)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Path != "/tmp/audit.db" {
		t.Errorf("audit config = %+v", cfg.Audit)
	}
}

func TestLoadFromPathDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Engine.RepairLimit != 3 {
		t.Errorf("default repair limit = %d, want 3", cfg.Engine.RepairLimit)
	}
	if cfg.Engine.OutputBudget != 8000 {
		t.Errorf("default output budget = %d, want 8000", cfg.Engine.OutputBudget)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("default data dir empty")
	}
	if cfg.Audit.Enabled {
		t.Error("audit should default off")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("STAGEHAND_TEST_KEY", "sk-from-env")
	if got := expandEnv("${STAGEHAND_TEST_KEY}"); got != "sk-from-env" {
		t.Errorf("expandEnv = %q", got)
	}
	if got := expandEnv("literal"); got != "literal" {
		t.Errorf("expandEnv = %q", got)
	}
}
