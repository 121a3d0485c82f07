package solver

import "fmt"

// StackError reports that the registration collaborator failed for one
// stack. The stack's contribution is excluded from the data-fit term and the
// right-hand side; the reconstruction proceeds with the remaining stacks.
type StackError struct {
	// Stack is the index of the failed stack in the input order.
	Stack int

	// Name is the stack's name, when set.
	Name string

	// Err is the failure propagated from the registration collaborator.
	Err error
}

// Error implements the error interface.
func (e *StackError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("stack %d (%s): registration failed: %v", e.Stack, e.Name, e.Err)
	}
	return fmt.Sprintf("stack %d: registration failed: %v", e.Stack, e.Err)
}

// Unwrap returns the underlying registration failure.
func (e *StackError) Unwrap() error { return e.Err }
