package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, want := range []string{"webgraph", "crawl", "validate", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage output missing %q", want)
		}
	}
}

func TestDoValidate_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
seed_urls:
  - https://example.com/
max_pages: 10
max_depth: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := doValidate(path, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Config OK") {
		t.Errorf("expected Config OK in output, got: %s", stdout.String())
	}
}

func TestDoValidate_WarningsPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	// max_pages missing triggers a defaulting warning.
	if err := os.WriteFile(path, []byte("seed_urls: [https://example.com/]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := doValidate(path, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Warning:") {
		t.Errorf("expected warnings in output, got: %s", stdout.String())
	}
}

func TestDoValidate_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := doValidate(filepath.Join(t.TempDir(), "nope.yaml"), &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Errorf("expected error on stderr, got: %s", stderr.String())
	}
}

func TestDoValidate_BadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("seed_urls: [ftp://example.com/]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := doValidate(path, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestSetupLogger_InvalidLevelFallsBack(t *testing.T) {
	log := setupLogger("not-a-level")
	if log.GetLevel().String() != "info" {
		t.Errorf("expected info fallback, got %s", log.GetLevel())
	}
}
