package card

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists means Create was called on a card that already exists,
	// or an attach was attempted twice. Programmer error; not retried.
	ErrAlreadyExists = errors.New("card already exists")
	// ErrNotCreated means an operation that needs a live card ran before
	// creation. Programmer error; not retried.
	ErrNotCreated = errors.New("card not created")
)

// CreateError wraps a transport failure during card creation. The lifecycle
// stays Uninitialized and the caller may retry.
type CreateError struct {
	Err error
}

func (e *CreateError) Error() string { return fmt.Sprintf("card create failed: %v", e.Err) }
func (e *CreateError) Unwrap() error { return e.Err }

// UpdateError wraps a non-fatal per-call transport failure. The lifecycle
// logs it and continues; the last successfully applied state stands.
type UpdateError struct {
	Op  string
	Err error
}

func (e *UpdateError) Error() string { return fmt.Sprintf("card %s failed: %v", e.Op, e.Err) }
func (e *UpdateError) Unwrap() error { return e.Err }
