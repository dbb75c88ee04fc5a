// Package model defines the persisted documents of the group chat backend.
//
// Every document carries a Validate method. Stores call it on write and on
// read so a record with missing required fields never reaches a caller.
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument marks a document that is missing required fields or
// carries out-of-range values.
var ErrInvalidDocument = errors.New("invalid document")

func invalid(kind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, kind, reason)
}
