package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Golden compares output against testdata/<name>.golden.
// If the GOLDEN_UPDATE environment variable is set, updates the golden file.
//
// scrub lists old, new pairs applied to got before the comparison, so values
// that change per run (temp dirs, test server URLs) can be replaced by fixed
// placeholders.
func Golden(t *testing.T, name string, got []byte, scrub ...string) {
	t.Helper()

	if len(scrub)%2 != 0 {
		t.Fatalf("golden %s: scrub needs old, new pairs", name)
	}
	if len(scrub) > 0 {
		got = []byte(strings.NewReplacer(scrub...).Replace(string(got)))
	}

	goldenPath := filepath.Join("testdata", name+".golden")

	if os.Getenv("GOLDEN_UPDATE") != "" {
		if err := os.MkdirAll("testdata", 0755); err != nil {
			t.Fatalf("failed to create testdata dir: %v", err)
		}
		if err := os.WriteFile(goldenPath, got, 0644); err != nil {
			t.Fatalf("failed to update golden file: %v", err)
		}
		return
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		t.Fatalf("failed to read golden file %s: %v\nGot:\n%s", goldenPath, err, got)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("output mismatch for %s\nWant:\n%s\nGot:\n%s", name, want, got)
	}
}

// GoldenString is like Golden but takes a string.
func GoldenString(t *testing.T, name string, got string, scrub ...string) {
	t.Helper()
	Golden(t, name, []byte(got), scrub...)
}
