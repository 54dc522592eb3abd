package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	f := Default()
	if f.Grid.Width != 80 || f.Grid.Height != 25 {
		t.Errorf("expected 80x25 grid, got %dx%d", f.Grid.Width, f.Grid.Height)
	}
	if f.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %q", f.Log.Level)
	}
	if f.Source.Encoding != "raw" {
		t.Errorf("expected raw encoding, got %q", f.Source.Encoding)
	}
	if f.Run.Seed != nil {
		t.Error("default seed should be unset")
	}
	if f.Visual.Speed != 1 {
		t.Errorf("expected speed 1, got %d", f.Visual.Speed)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestParse(t *testing.T) {
	data := `
[grid]
width = 120

[run]
seed = 42
timeout = 10
max_steps = 100000

[log]
level = "debug"
file = "funge.log"

[source]
encoding = "cp437"

[visual]
enabled = true
speed = 8
`
	f, err := Parse("funge.toml", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Grid.Width != 120 {
		t.Errorf("width = %d, want 120", f.Grid.Width)
	}
	if f.Grid.Height != 25 {
		t.Errorf("missing height should keep default 25, got %d", f.Grid.Height)
	}
	if f.Run.Seed == nil || *f.Run.Seed != 42 {
		t.Errorf("seed = %v, want 42", f.Run.Seed)
	}
	if f.Run.Timeout != 10 || f.Run.MaxSteps != 100000 {
		t.Errorf("run = %+v", f.Run)
	}
	if f.Log.Level != "debug" || f.Log.File != "funge.log" {
		t.Errorf("log = %+v", f.Log)
	}
	if f.Source.Encoding != "cp437" {
		t.Errorf("encoding = %q", f.Source.Encoding)
	}
	if !f.Visual.Enabled || f.Visual.Speed != 8 {
		t.Errorf("visual = %+v", f.Visual)
	}
	if f.Path != "funge.toml" {
		t.Errorf("path = %q", f.Path)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{"syntax error", "[grid\nwidth = 1", "parse error"},
		{"unknown key", "[grid]\nwidht = 10", "unknown keys"},
		{"unknown section", "[audio]\nvolume = 3", "unknown keys"},
		{"zero width", "[grid]\nwidth = 0", "grid size"},
		{"negative timeout", "[run]\ntimeout = -1", "timeout"},
		{"timeout overflows duration", "[run]\ntimeout = 9223372036854775807", "timeout must be at most"},
		{"bad level", "[log]\nlevel = \"loud\"", "invalid log level"},
		{"bad encoding", "[source]\nencoding = \"utf16\"", "unknown encoding"},
		{"zero speed", "[visual]\nspeed = 0", "speed"},
		{"wrong type", "[grid]\nwidth = \"wide\"", "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.toml", tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "funge.toml")
	if err := os.WriteFile(path, []byte("[run]\nmax_steps = 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Run.MaxSteps != 5 {
		t.Errorf("max_steps = %d, want 5", f.Run.MaxSteps)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
