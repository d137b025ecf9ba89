package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/healthforce/authflow/status"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "authflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func baseConfig(t *testing.T, outputDir string) string {
	t.Helper()
	return `
portal:
  base_url: https://portal.example.com
  username: centre
  password: secret
intake:
  file: patients.csv
output:
  dir: ` + outputDir + `
`
}

func TestLoad(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "out")
	path := writeConfig(t, baseConfig(t, outputDir))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Portal.BaseURL != "https://portal.example.com" {
		t.Errorf("base url = %q", cfg.Portal.BaseURL)
	}
	if cfg.Rules.Source != RulesSourceFile || cfg.Rules.File != "rules.yaml" {
		t.Errorf("rules defaults = %q %q", cfg.Rules.Source, cfg.Rules.File)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level default = %q", cfg.Log.Level)
	}
	if cfg.Output.ReportFile != "outcome.csv" {
		t.Errorf("report file default = %q", cfg.Output.ReportFile)
	}

	if _, err := os.Stat(cfg.Output.Dir); err != nil {
		t.Errorf("output directory was not created: %v", err)
	}
}

func TestLoadExpandsDatePlaceholder(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "runs", "{date}")
	path := writeConfig(t, baseConfig(t, outputDir))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if strings.Contains(cfg.Output.Dir, "{date}") {
		t.Errorf("output dir = %q, placeholder not expanded", cfg.Output.Dir)
	}
	today := time.Now().Format("2006-01-02")
	if !strings.Contains(cfg.Output.Dir, today) {
		t.Errorf("output dir = %q, want today's date %s", cfg.Output.Dir, today)
	}
}

func TestLoadValidatesRuleSource(t *testing.T) {
	outputDir := t.TempDir()

	tests := []struct {
		name  string
		rules string
	}{
		{
			name: "unknown source",
			rules: `
rules:
  source: consul
`,
		},
		{
			name: "postgres without database url",
			rules: `
rules:
  source: postgres
`,
		},
		{
			name: "file source with empty path",
			rules: `
rules:
  source: file
  file: ""
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, baseConfig(t, outputDir)+tt.rules)
			if _, err := Load(path); err == nil {
				t.Error("Load() should have rejected the rule source")
			}
		})
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
intake:
  file: patients.csv
output:
  dir: `+t.TempDir()+`
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() should require portal.base_url")
	}
}

func TestLoadCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("AUTHFLOW_PORTAL_USERNAME", "env-user")
	t.Setenv("AUTHFLOW_PORTAL_PASSWORD", "env-pass")

	path := writeConfig(t, `
portal:
  base_url: https://portal.example.com
output:
  dir: `+t.TempDir()+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Portal.Username != "env-user" || cfg.Portal.Password != "env-pass" {
		t.Errorf("credentials = %q %q, want the environment values", cfg.Portal.Username, cfg.Portal.Password)
	}
}

func TestMarkersFallBackToDefaults(t *testing.T) {
	cfg := &Config{}
	if len(cfg.Markers()) != len(status.DefaultMarkers()) {
		t.Error("Markers() should fall back to the default table")
	}

	cfg.Status.Markers = []status.Marker{{Contains: "ok", State: "approved"}}
	if len(cfg.Markers()) != 1 {
		t.Error("Markers() should prefer the configured table")
	}
}
