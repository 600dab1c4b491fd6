package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownTarget is returned when a target key is not registered.
var ErrUnknownTarget = errors.New("unknown import target")

// Registry holds the target definitions known to an importer.
// It is filled once at startup and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	targets map[Target]TargetDefinition
}

// NewRegistry creates a registry holding defs.
// Panics if two definitions share a key.
func NewRegistry(defs ...TargetDefinition) *Registry {
	r := &Registry{targets: make(map[Target]TargetDefinition, len(defs))}
	for _, def := range defs {
		r.Register(def)
	}
	return r
}

// Register adds a target definition to the registry.
// Panics if a target with the same key is already registered.
func (r *Registry) Register(def TargetDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.targets[def.Info.Key]; exists {
		panic(fmt.Sprintf("import target already registered: %s", def.Info.Key))
	}
	if def.Build == nil {
		panic(fmt.Sprintf("import target %s has no Build func", def.Info.Key))
	}

	// Populate Columns and Required from FieldSpecs if not set
	if len(def.Info.Columns) == 0 {
		def.Info.Columns = make([]string, len(def.FieldSpecs))
		for i, spec := range def.FieldSpecs {
			def.Info.Columns[i] = spec.Name
		}
	}
	if len(def.Info.Required) == 0 {
		for _, spec := range def.FieldSpecs {
			if spec.Required && spec.Default == "" {
				def.Info.Required = append(def.Info.Required, spec.Name)
			}
		}
	}

	r.targets[def.Info.Key] = def
}

// Get returns a target definition by key.
// Returns false if not found.
func (r *Registry) Get(key Target) (TargetDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.targets[key]
	return def, ok
}

// Lookup parses a user supplied target key and returns its definition.
func (r *Registry) Lookup(key string) (TargetDefinition, error) {
	def, ok := r.Get(Target(strings.ToLower(strings.TrimSpace(key))))
	if !ok {
		return TargetDefinition{}, fmt.Errorf("%w: %q", ErrUnknownTarget, key)
	}
	return def, nil
}

// All returns all registered target definitions sorted by key.
func (r *Registry) All() []TargetDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TargetDefinition, 0, len(r.targets))
	for _, def := range r.targets {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}
