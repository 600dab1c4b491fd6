// Package targets defines the import targets known to the pipeline:
// customers, orders and shipments. Each target is a closed schema with
// its own typed record, duplicate key and COPY column layout.
package targets

import (
	"time"

	"github.com/JonMunkholm/crmimport/internal/core"
)

// Definitions returns the definitions of every import target.
func Definitions() []core.TargetDefinition {
	return []core.TargetDefinition{
		customersDefinition(),
		ordersDefinition(),
		shipmentsDefinition(),
	}
}

// NewRegistry returns a registry holding every import target.
func NewRegistry() *core.Registry {
	return core.NewRegistry(Definitions()...)
}

// optionalDate returns a pointer to the date field, or nil when absent.
func optionalDate(f core.Fields, name string) *time.Time {
	if t, ok := f.Date(name); ok {
		return &t
	}
	return nil
}
