package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clipdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty path failed: %v", err)
	}

	if !cfg.Capture.Enabled {
		t.Error("Expected capture enabled by default")
	}
	if cfg.Output.ImageFormat != "png" {
		t.Errorf("Expected default image format png, got %s", cfg.Output.ImageFormat)
	}
	if cfg.Output.Quality != QualityMedium {
		t.Errorf("Expected default quality medium, got %s", cfg.Output.Quality)
	}
	if cfg.Tools.FFmpeg != "ffmpeg" {
		t.Errorf("Expected default ffmpeg tool name, got %s", cfg.Tools.FFmpeg)
	}
	if strings.HasPrefix(cfg.Output.Directory, "~") {
		t.Errorf("Expected expanded output directory, got %s", cfg.Output.Directory)
	}
}

func TestLoad_FileOverridesAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `
capture:
  enabled: false
  display: 1
output:
  directory: /tmp/clipdeck-test
  quality: high
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Capture.Enabled {
		t.Error("Expected capture disabled from file")
	}
	if cfg.Capture.Display != 1 {
		t.Errorf("Expected display 1, got %d", cfg.Capture.Display)
	}
	if cfg.Output.Quality != QualityHigh {
		t.Errorf("Expected quality high, got %s", cfg.Output.Quality)
	}
	// Missing fields fall back to defaults.
	if cfg.Output.ImageFormat != "png" {
		t.Errorf("Expected default image format, got %s", cfg.Output.ImageFormat)
	}
	if cfg.Bridge.Address != "ws://127.0.0.1:4455" {
		t.Errorf("Expected default bridge address, got %s", cfg.Bridge.Address)
	}
}

func TestLoad_InvalidQuality(t *testing.T) {
	path := writeConfigFile(t, `
output:
  quality: ultra
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for invalid quality")
	}
	if !strings.Contains(err.Error(), "output.quality") {
		t.Errorf("Expected quality validation error, got: %v", err)
	}
}

func TestLoad_InvalidImageFormat(t *testing.T) {
	path := writeConfigFile(t, `
output:
  image_format: bmp
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for invalid image format")
	}
	if !strings.Contains(err.Error(), "output.image_format") {
		t.Errorf("Expected image format validation error, got: %v", err)
	}
}

func TestLoad_InvalidBridgeAddress(t *testing.T) {
	path := writeConfigFile(t, `
bridge:
  address: http://127.0.0.1:4455
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for non-websocket bridge address")
	}
}

func TestImageExtension(t *testing.T) {
	cases := []struct {
		format string
		want   string
	}{
		{"png", "png"},
		{"jpg", "jpg"},
		{"jpeg", "jpg"},
		{"", "png"},
	}

	for _, tc := range cases {
		cfg := &Config{Output: OutputConfig{ImageFormat: tc.format}}
		if got := cfg.ImageExtension(); got != tc.want {
			t.Errorf("ImageExtension(%q) = %q, want %q", tc.format, got, tc.want)
		}
	}
}

func TestExpandPath_EnvironmentVariable(t *testing.T) {
	t.Setenv("CLIPDECK_TEST_DIR", "/tmp/clipdeck-env")

	got := ExpandPath("$CLIPDECK_TEST_DIR/recordings")
	want := "/tmp/clipdeck-env/recordings"
	if got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_Tilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	got := ExpandPath("~/Videos")
	want := filepath.Join(home, "Videos")
	if got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}
}
