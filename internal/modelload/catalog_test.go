package modelload

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultModelPicksSmallest(t *testing.T) {
	c := NewCatalog([]Model{
		{ID: "big", ParamBytes: 3_000_000_000},
		{ID: "small", ParamBytes: 400_000_000},
		{ID: "medium", ParamBytes: 900_000_000},
	})
	got, err := c.DefaultModel()
	if err != nil {
		t.Fatalf("DefaultModel() error = %v", err)
	}
	if got != "small" {
		t.Errorf("DefaultModel() = %q, want %q", got, "small")
	}
}

func TestDefaultModelBreaksTiesByID(t *testing.T) {
	c := NewCatalog([]Model{
		{ID: "zeta", ParamBytes: 500},
		{ID: "alpha", ParamBytes: 500},
	})
	got, err := c.DefaultModel()
	if err != nil {
		t.Fatalf("DefaultModel() error = %v", err)
	}
	if got != "alpha" {
		t.Errorf("DefaultModel() = %q, want stable lexicographic tiebreak %q", got, "alpha")
	}
}

func TestDefaultModelEmptyCatalog(t *testing.T) {
	c := NewCatalog(nil)
	if _, err := c.DefaultModel(); err == nil {
		t.Error("DefaultModel() on empty catalog expected error")
	}
}

func TestModelsSortedBySize(t *testing.T) {
	c := BuiltinCatalog()
	ranked := c.Models()
	if len(ranked) == 0 {
		t.Fatal("builtin catalog is empty")
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i-1].ParamBytes > ranked[i].ParamBytes {
			t.Errorf("Models() not size-ascending at %d: %d > %d", i, ranked[i-1].ParamBytes, ranked[i].ParamBytes)
		}
	}
}

func TestInstalled(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog([]Model{{ID: "m", FileName: "m.gguf"}})

	if c.Installed(dir, "m") {
		t.Error("Installed() = true before the file exists")
	}
	if err := os.WriteFile(filepath.Join(dir, "m.gguf"), []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	if !c.Installed(dir, "m") {
		t.Error("Installed() = false with the file present")
	}
	if c.Installed(dir, "unknown") {
		t.Error("Installed() = true for an unknown id")
	}
}
