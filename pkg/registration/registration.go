// Package registration defines the interface of the external registration
// collaborator. The reconstruction core consumes the transforms it produces
// as fixed inputs; the registration algorithms themselves live outside this
// repository.
package registration

import "slicerecon/internal/models"

// Engine aligns the slices of a stack with the current volume estimate,
// updating each slice's Transform in place. A returned error marks the whole
// stack as failed for the current reconstruction run; the solver excludes
// the stack rather than aborting.
type Engine interface {
	Register(stack *models.Stack, target *models.Volume) error
}

// Identity is the no-op engine: it leaves every slice transform untouched.
// It stands in for a real registration engine when the slices are already
// aligned, and in tests.
type Identity struct{}

// Register implements Engine.
func (Identity) Register(*models.Stack, *models.Volume) error { return nil }
