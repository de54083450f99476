package registry

import "fmt"

var (
	// ErrNotFound is returned when the addressed user, session or triple does
	// not exist (or has expired). Boundary layers decide whether this surfaces
	// as a 404-equivalent or as a "not_found" status value.
	ErrNotFound = fmt.Errorf("session record not found")

	// ErrIllegalTransition is returned when a resume is requested against a
	// record whose status is not interrupted.
	ErrIllegalTransition = fmt.Errorf("illegal status transition")
)
