package command

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/cases"

	"github.com/plus-control/plusd/internal/monitoring"
)

// aliases redirects legacy command names to their canonical names.
var aliases = map[string]string{
	fold("GetDeviceParameters"): "Get",
}

type registration struct {
	name      string
	prototype Command
}

// Registry maps command names to prototypes. Lookups ignore case.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// fold returns the case-folded lookup key; a Caser is stateful, so a fresh
// one is used per call.
func fold(name string) string {
	return cases.Fold().String(name)
}

// Register stores prototype under each of its names. A name registered
// earlier is replaced and the replacement logged.
func (r *Registry) Register(prototype Command) error {
	if prototype == nil {
		return fmt.Errorf("command prototype is nil")
	}
	names := prototype.Names()
	if len(names) == 0 {
		return fmt.Errorf("cannot register command %T: no command names", prototype)
	}

	for _, name := range names {
		if name == "" {
			return fmt.Errorf("cannot register command %T: empty command name", prototype)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		key := fold(name)
		if prev, ok := r.entries[key]; ok {
			monitoring.Logf("command: %s already registered by %T, replacing with %T", name, prev.prototype, prototype)
		}
		r.entries[key] = registration{name: name, prototype: prototype}
	}
	return nil
}

// Instantiate resolves name, clones its prototype and configures the clone
// from the XML command text.
func (r *Registry) Instantiate(name, text string) (Command, error) {
	if canonical, ok := aliases[fold(name)]; ok {
		name = canonical
	}

	r.mu.RLock()
	reg, ok := r.entries[fold(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	el, err := parseCommandElement(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedCommand, name, err)
	}

	cmd := reg.prototype.Clone()
	cmd.base().Name = reg.name
	if err := cmd.ReadConfiguration(el); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedCommand, name, err)
	}
	return cmd, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, reg := range r.entries {
		names = append(names, reg.name)
	}
	sort.Strings(names)
	return names
}

// Description returns the description of a registered name, or "".
func (r *Registry) Description(name string) string {
	r.mu.RLock()
	reg, ok := r.entries[fold(name)]
	r.mu.RUnlock()

	if !ok {
		return ""
	}
	return reg.prototype.Description(reg.name)
}
