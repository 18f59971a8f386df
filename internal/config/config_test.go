package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range []string{EnvPort, EnvAPIURL, EnvChartLimit, EnvSessionTTL, EnvHeadless, EnvRequestTimeout} {
		t.Setenv(k, "")
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.APIURL() != DefaultAPIURL {
		t.Errorf("APIURL() = %q, want %q", cfg.APIURL(), DefaultAPIURL)
	}
	if cfg.ChartLimit() != 50 {
		t.Errorf("ChartLimit() = %d, want 50", cfg.ChartLimit())
	}
	if cfg.RequestTimeout() != 300*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5m", cfg.RequestTimeout())
	}
	if cfg.Headless() {
		t.Error("Headless() = true, want false")
	}
	if cfg.BlobDSN() != DefaultBlobDSN {
		t.Errorf("BlobDSN() = %q, want %q", cfg.BlobDSN(), DefaultBlobDSN)
	}
}

func TestNew_FromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvAPIURL, "http://localhost:8000/")
	t.Setenv(EnvChartLimit, "10")
	t.Setenv(EnvSessionTTL, "60")
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", cfg.Port())
	}
	if cfg.APIURL() != "http://localhost:8000" {
		t.Errorf("APIURL() = %q, want trailing slash trimmed", cfg.APIURL())
	}
	if cfg.ChartLimit() != 10 {
		t.Errorf("ChartLimit() = %d, want 10", cfg.ChartLimit())
	}
	if cfg.SessionTTL() != time.Minute {
		t.Errorf("SessionTTL() = %v, want 1m", cfg.SessionTTL())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{EnvPort, "abc"},
		{EnvPort, "70000"},
		{EnvAPIURL, "ftp://example.com"},
		{EnvChartLimit, "0"},
		{EnvMaxVideoBytes, "-1"},
		{EnvHeadless, "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := New(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestNew_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv(EnvChartLimit, "")

	content := "KARAOKE_CHART_LIMIT=7\n"
	if err := os.WriteFile(filepath.Join(dir, EnvFile), []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv.Load does not override variables that exist, even if empty.
	os.Unsetenv(EnvChartLimit)
	defer os.Unsetenv(EnvChartLimit)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChartLimit() != 7 {
		t.Errorf("ChartLimit() = %d, want 7 from .env", cfg.ChartLimit())
	}
}

var _ Config = (*EnvConfig)(nil)

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore dir: %v", err)
		}
	})
}
