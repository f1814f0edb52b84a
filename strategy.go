package email

import (
	"sort"
	"sync"

	"github.com/interactive-solutions/go-email/config"
)

// Registrar binds one transport's options from the email section and registers
// the transport on the container.
type Registrar func(c *Container, section config.Section) error

// RegistrarName is the lookup key for a strategy: "Add" + name + "Strategy".
// An empty name maps to the no-op registrar.
func RegistrarName(strategy string) string {
	if strategy == "" {
		strategy = DoNothingStrategy
	}

	return "Add" + strategy + "Strategy"
}

// StrategyRegistry maps registrar names to registrars.
type StrategyRegistry struct {
	mu         sync.RWMutex
	registrars map[string]Registrar
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{registrars: make(map[string]Registrar)}
}

// DefaultStrategies is filled by the init functions of transport packages.
var DefaultStrategies = NewStrategyRegistry()

// Register adds a registrar under RegistrarName(strategy). It panics if the
// registrar is nil or the name is taken.
func (r *StrategyRegistry) Register(strategy string, registrar Registrar) {
	if registrar == nil {
		panic("email: Register registrar is nil")
	}

	name := RegistrarName(strategy)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.registrars[name]; dup {
		panic("email: Register called twice for " + name)
	}

	r.registrars[name] = registrar
}

// Lookup returns the registrar registered under the exact name.
func (r *StrategyRegistry) Lookup(name string) (Registrar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registrar, ok := r.registrars[name]

	return registrar, ok
}

// Names returns the registered registrar names, sorted.
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.registrars))
	for name := range r.registrars {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// RegisterStrategy registers on DefaultStrategies. Transport packages call it
// from init.
func RegisterStrategy(strategy string, registrar Registrar) {
	DefaultStrategies.Register(strategy, registrar)
}
