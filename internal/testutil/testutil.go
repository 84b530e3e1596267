// Package testutil provides fixtures shared by the harness's own tests:
// shell stand-ins for the executable under test and a golden fixture set.
package testutil

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

//go:embed testdata/bassovac.txtar
var bassovacArchive []byte

// Fixture is an extracted fixture tree.
type Fixture struct {
	Root string // holds bin/ and data/
}

// Bin returns the path of a stand-in program, e.g. "bassovac" or "crash".
func (f Fixture) Bin(name string) string {
	return filepath.Join(f.Root, "bin", name)
}

// Data returns the fixture data directory.
func (f Fixture) Data() string {
	return filepath.Join(f.Root, "data")
}

// Golden returns the content of the checked-in expected output.
func (f Fixture) Golden(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.Data(), "expected.out"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// NewFixture extracts the stand-in programs and fixtures into a fresh
// temp directory. Programs under bin/ are made executable. Tests that use
// it are skipped where no POSIX shell is available.
func NewFixture(t *testing.T) Fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stand-in executables are POSIX shell scripts")
	}
	root := t.TempDir()
	Extract(t, txtar.Parse(bassovacArchive), root)
	return Fixture{Root: root}
}

// Extract writes every file of archive below dir.
func Extract(t *testing.T, archive *txtar.Archive, dir string) {
	t.Helper()
	for _, f := range archive.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		perm := os.FileMode(0o644)
		if strings.HasPrefix(f.Name, "bin/") {
			perm = 0o755
		}
		if err := os.WriteFile(path, f.Data, perm); err != nil {
			t.Fatal(err)
		}
	}
}
