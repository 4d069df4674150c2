// Package modelload drives the asynchronous lifecycle of locally-executed
// models: catalog metadata, download/initialization, and residency tracking.
package modelload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Model describes one known local model with structured size metadata.
type Model struct {
	// ID is the model identifier used throughout the engine.
	ID string `json:"id"`
	// DisplayName is the operator-facing name.
	DisplayName string `json:"display_name"`
	// ParamBytes is the on-disk weight size in bytes; the default-model
	// ranking minimizes this so first-use latency stays low.
	ParamBytes int64 `json:"param_bytes"`
	// FileName is the weight file name inside the models directory.
	FileName string `json:"file_name"`
	// URL is where the weights are fetched from.
	URL string `json:"url"`
}

// Catalog holds the known local models.
type Catalog struct {
	models []Model
	byID   map[string]Model
}

// NewCatalog builds a catalog from the given entries.
func NewCatalog(entries []Model) *Catalog {
	c := &Catalog{models: append([]Model(nil), entries...), byID: make(map[string]Model, len(entries))}
	for _, m := range c.models {
		c.byID[m.ID] = m
	}
	return c
}

// BuiltinCatalog returns the default small-model catalog.
func BuiltinCatalog() *Catalog {
	return NewCatalog([]Model{
		{ID: "qwen2.5-0.5b-instruct", DisplayName: "Qwen2.5 0.5B Instruct", ParamBytes: 397_000_000, FileName: "qwen2.5-0.5b-instruct-q4_k_m.gguf", URL: "https://huggingface.co/Qwen/Qwen2.5-0.5B-Instruct-GGUF/resolve/main/qwen2.5-0.5b-instruct-q4_k_m.gguf"},
		{ID: "llama-3.2-1b-instruct", DisplayName: "Llama 3.2 1B Instruct", ParamBytes: 808_000_000, FileName: "llama-3.2-1b-instruct-q4_k_m.gguf", URL: "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf"},
		{ID: "llama-3.2-3b-instruct", DisplayName: "Llama 3.2 3B Instruct", ParamBytes: 2_020_000_000, FileName: "llama-3.2-3b-instruct-q4_k_m.gguf", URL: "https://huggingface.co/bartowski/Llama-3.2-3B-Instruct-GGUF/resolve/main/Llama-3.2-3B-Instruct-Q4_K_M.gguf"},
		{ID: "phi-3.5-mini-instruct", DisplayName: "Phi 3.5 Mini Instruct", ParamBytes: 2_390_000_000, FileName: "phi-3.5-mini-instruct-q4_k_m.gguf", URL: "https://huggingface.co/bartowski/Phi-3.5-mini-instruct-GGUF/resolve/main/Phi-3.5-mini-instruct-Q4_K_M.gguf"},
	})
}

// Get returns the entry for the given id.
func (c *Catalog) Get(id string) (Model, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Models returns all entries, size-ascending.
func (c *Catalog) Models() []Model {
	out := append([]Model(nil), c.models...)
	sortBySize(out)
	return out
}

// DefaultModel returns the model a first-time local load should pick when the
// user has not configured one: smallest by ParamBytes, ties broken by id so
// the choice is stable across runs.
func (c *Catalog) DefaultModel() (string, error) {
	if len(c.models) == 0 {
		return "", fmt.Errorf("model catalog is empty")
	}
	ranked := c.Models()
	return ranked[0].ID, nil
}

// Installed reports whether the model's weight file is present in dir.
func (c *Catalog) Installed(dir, id string) bool {
	m, ok := c.byID[id]
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, m.FileName))
	return err == nil && !info.IsDir()
}

func sortBySize(models []Model) {
	sort.Slice(models, func(i, j int) bool {
		if models[i].ParamBytes != models[j].ParamBytes {
			return models[i].ParamBytes < models[j].ParamBytes
		}
		return models[i].ID < models[j].ID
	})
}
