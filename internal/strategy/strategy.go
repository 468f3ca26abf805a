// Package strategy ships the built-in strategies and the registry the
// CLI resolves --strategy-file names against.
//
// Design rules:
//   - Strategies contain no broker or provider specifics; they speak
//     only the runtime context API.
//   - A strategy registers its schedule in Initialize and keeps
//     restart-surviving state in g, never in package globals.
package strategy

import (
	"fmt"

	"github.com/parachutel/bullet-trade/internal/engine"
)

// Registry maps strategy names to factories.
var Registry = map[string]func() engine.Strategy{}

// New resolves a strategy by name.
func New(name string) (engine.Strategy, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q, registered: %v", name, registeredNames())
	}
	return factory(), nil
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
