package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCloseMovesFileIntoPlace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "pages.json")
	f, err := New(target)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("payload"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("target must not exist before Close")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Fatalf("got %q", b)
	}
}

func TestAbortLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	f, err := New(filepath.Join(dir, "pages.json"))
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("half a pa")
	if err := f.Abort(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory not empty after abort: %v", entries)
	}
}

func TestWriteFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteFile(target, strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(target)
	if string(b) != "abc" {
		t.Fatalf("got %q", b)
	}
}
