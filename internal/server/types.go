// Package server defines the errors surfaced at the relay's process boundary.
package server

import "errors"

// ErrBindFailure reports that a listener could not bind its port. The
// process cannot start without it.
var ErrBindFailure = errors.New("bind failure")
