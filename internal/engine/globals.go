// Package engine - globals.go implements the strategy's persistent
// global state `g`.
//
// In live mode the globals survive restarts: they are gob-encoded to
// runtime_dir/g.gob after each callback and on a background interval,
// and rehydrated at startup. Writes are atomic via temp file + rename.
package engine

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

func init() {
	// Concrete types allowed inside the persisted globals. Values
	// outside this set fail the save with a clear error instead of
	// silently corrupting state.
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register([]float64{})
	gob.Register(map[string]float64{})
	gob.Register(map[string]string{})
}

// GlobalsFileName is the persisted globals file inside runtime_dir.
const GlobalsFileName = "g.gob"

// Globals is the opaque key/value state owned by the driver and handed
// to the strategy through the context.
type Globals struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewGlobals creates empty globals.
func NewGlobals() *Globals {
	return &Globals{values: make(map[string]any)}
}

// Get returns the value for key.
func (g *Globals) Get(key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.values[key]
	return v, ok
}

// Set stores a value for key.
func (g *Globals) Set(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[key] = value
}

// Delete removes a key.
func (g *Globals) Delete(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.values, key)
}

// Len returns the number of stored keys.
func (g *Globals) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.values)
}

// snapshot copies the values map for encoding outside the lock.
func (g *Globals) snapshot() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.values))
	for k, v := range g.values {
		out[k] = v
	}
	return out
}

// SaveTo writes the globals to path atomically (temp file + rename).
// Values gob cannot encode (cyclic or unregistered types) fail the
// save.
func (g *Globals) SaveTo(path string) error {
	snap := g.snapshot()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("engine: create runtime dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".g-*.tmp")
	if err != nil {
		return fmt.Errorf("engine: create temp globals file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("engine: encode globals: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("engine: close temp globals file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("engine: rename globals file: %w", err)
	}
	return nil
}

// LoadFrom rehydrates the globals from path. A missing file is not an
// error: the globals stay empty.
func (g *Globals) LoadFrom(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("engine: open globals file: %w", err)
	}
	defer f.Close()

	var values map[string]any
	if err := gob.NewDecoder(f).Decode(&values); err != nil {
		return fmt.Errorf("engine: decode globals: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = values
	return nil
}
