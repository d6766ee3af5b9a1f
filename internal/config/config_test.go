package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWIFTCONVERT_SERVICE_URL", "")
	t.Setenv("SWIFTCONVERT_DATA_DIR", "/tmp/swiftconvert-test")
	t.Setenv("SWIFTCONVERT_TIMEOUT", "")
	t.Setenv("SWIFTCONVERT_OUTPUT_TYPES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", cfg.Timeout)
	}
	if cfg.Upload.MaxFiles != 10 {
		t.Errorf("MaxFiles = %d, want 10", cfg.Upload.MaxFiles)
	}
	if cfg.LogFile != "/tmp/swiftconvert-test/swiftconvert.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if !cfg.SupportsOutput("png") || cfg.SupportsOutput("heic") {
		t.Errorf("unexpected output types %v", cfg.Upload.OutputTypes)
	}
	if err := cfg.RequireService(); !errors.Is(err, ErrMissingServiceURL) {
		t.Errorf("RequireService = %v, want ErrMissingServiceURL", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWIFTCONVERT_SERVICE_URL", "https://convert.example.com/")
	t.Setenv("SWIFTCONVERT_TIMEOUT", "0")
	t.Setenv("SWIFTCONVERT_MAX_FILES", "3")
	t.Setenv("SWIFTCONVERT_OUTPUT_TYPES", " PNG, webp ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServiceURL != "https://convert.example.com" {
		t.Errorf("ServiceURL = %q", cfg.ServiceURL)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", cfg.Timeout)
	}
	if cfg.Upload.MaxFiles != 3 {
		t.Errorf("MaxFiles = %d, want 3", cfg.Upload.MaxFiles)
	}
	if got := cfg.Upload.OutputTypes; len(got) != 2 || got[0] != "png" || got[1] != "webp" {
		t.Errorf("OutputTypes = %v", got)
	}
	if err := cfg.RequireService(); err != nil {
		t.Errorf("RequireService: %v", err)
	}
}

func TestLoadInvalidTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWIFTCONVERT_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid timeout")
	}
}
