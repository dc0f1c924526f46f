package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := Default()
	if cfg.Source != want.Source || cfg.TopN != want.TopN || cfg.QuitCommand != "q" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if cfg.Engine != want.Engine {
		t.Errorf("Engine = %+v, want %+v", cfg.Engine, want.Engine)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(PathEnvVar, "")

	path := writeConfig(t, dir, "custom.yaml", `
source: games.csv
output: markdown
top_n: 5
engine:
  alpha: 1.5
  stem: true
server:
  write_timeout: 1m
`)

	tests := []struct {
		name  string
		path  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "file overrides defaults",
			path: path,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Source != "games.csv" || cfg.Output != "markdown" || cfg.TopN != 5 {
					t.Errorf("top level = %q/%q/%d", cfg.Source, cfg.Output, cfg.TopN)
				}
				if cfg.Engine.Alpha != 1.5 || !cfg.Engine.Stem {
					t.Errorf("Engine = %+v", cfg.Engine)
				}
				if cfg.Engine.Epsilon != Default().Engine.Epsilon {
					t.Errorf("Engine.Epsilon = %v, want default kept", cfg.Engine.Epsilon)
				}
				if cfg.Server.WriteTimeout != time.Minute {
					t.Errorf("Server.WriteTimeout = %v, want 1m", cfg.Server.WriteTimeout)
				}
			},
		},
		{
			name: "environment overrides file",
			path: path,
			env: map[string]string{
				"PLAYNEXT_TOP_N":               "7",
				"PLAYNEXT_ENGINE_ALPHA":        "0.25",
				"PLAYNEXT_SERVER_ADDR":         ":9090",
				"PLAYNEXT_SERVER_READ_TIMEOUT": "3s",
				"PLAYNEXT_UNRELATED":           "ignored",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.TopN != 7 {
					t.Errorf("TopN = %d, want 7", cfg.TopN)
				}
				if cfg.Engine.Alpha != 0.25 {
					t.Errorf("Engine.Alpha = %v, want 0.25", cfg.Engine.Alpha)
				}
				if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout != 3*time.Second {
					t.Errorf("Server = %+v", cfg.Server)
				}
				if cfg.Source != "games.csv" {
					t.Errorf("Source = %q, want file value", cfg.Source)
				}
			},
		},
		{
			name: "config path from environment",
			env:  map[string]string{PathEnvVar: path},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Source != "games.csv" {
					t.Errorf("Source = %q, want games.csv", cfg.Source)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(tt.path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(PathEnvVar, "")
	writeConfig(t, dir, "playnext.yml", "quit_command: exit\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QuitCommand != "exit" {
		t.Errorf("QuitCommand = %q, want exit", cfg.QuitCommand)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(PathEnvVar, "")

	tests := []struct {
		name string
		path string
	}{
		{"missing explicit file", filepath.Join(dir, "nope.yaml")},
		{"malformed yaml", writeConfig(t, dir, "bad.yaml", "engine: [unterminated\n")},
		{"wrong type", writeConfig(t, dir, "type.yaml", "top_n: many\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty source", func(c *Config) { c.Source = "" }, true},
		{"unknown format", func(c *Config) { c.Format = "xml" }, true},
		{"unknown output", func(c *Config) { c.Output = "html" }, true},
		{"zero top n", func(c *Config) { c.TopN = 0 }, true},
		{"empty quit command", func(c *Config) { c.QuitCommand = "" }, true},
		{"negative alpha", func(c *Config) { c.Engine.Alpha = -1 }, true},
		{"zero epsilon", func(c *Config) { c.Engine.Epsilon = 0 }, true},
		{"zero server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"snapshots disabled", func(c *Config) { c.SnapshotDir = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"PLAYNEXT_SOURCE", "source"},
		{"PLAYNEXT_SNAPSHOT_DIR", "snapshot_dir"},
		{"PLAYNEXT_ENGINE_MAX_FEATURES", "engine.max_features"},
		{"PLAYNEXT_CONFIG", ""},
		{"PLAYNEXT_NOPE", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := envKey(tt.name); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
