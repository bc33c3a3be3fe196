package config

import (
	"os"
	"testing"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DumpField != "upload_file_minidump" {
		t.Fatalf("unexpected dump field default: %q", cfg.DumpField)
	}
	if cfg.ConcurrentCrashmovers != 2 {
		t.Fatalf("unexpected concurrency default: %d", cfg.ConcurrentCrashmovers)
	}
	if cfg.CrashStorageClass != "memory" || cfg.CrashPublishClass != "queue" {
		t.Fatalf("unexpected plugin defaults: %+v", cfg)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"CRASHSTORAGE_CLASS", "postgresql")
	t.Setenv(EnvPrefix+"CONCURRENT_CRASHMOVERS", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CrashStorageClass != "postgresql" {
		t.Fatalf("expected env override, got %q", cfg.CrashStorageClass)
	}
	if cfg.ConcurrentCrashmovers != 5 {
		t.Fatalf("expected env override, got %d", cfg.ConcurrentCrashmovers)
	}
}

func TestLoad_RejectsZeroConcurrency(t *testing.T) {
	t.Setenv(EnvPrefix+"CONCURRENT_CRASHMOVERS", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for concurrent_crashmovers=0")
	}
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err != nil {
		t.Fatalf("expected missing yaml file to be ignored, got %v", err)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "collector-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("listen_addr: \":9999\"\n"); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("expected yaml overlay to apply, got %q", cfg.ListenAddr)
	}
}
