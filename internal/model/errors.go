package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a quiz references an id missing from the bank.
	ErrNotFound = errors.New("item not found in bank")
	// ErrExhausted is returned when no usable item survives a build.
	ErrExhausted = errors.New("no usable items")
)

// StructuralError reports a schema-invalid item or assembly. It is fatal for
// the operation that encounters it.
type StructuralError struct {
	ItemID   string
	Problems []string
}

func (e *StructuralError) Error() string {
	id := e.ItemID
	if id == "" {
		id = "(no id)"
	}
	return fmt.Sprintf("invalid item %s: %s", id, strings.Join(e.Problems, "; "))
}

func structural(id string, problems ...string) *StructuralError {
	return &StructuralError{ItemID: id, Problems: problems}
}

// SkipError records a unit that was dropped without aborting the run.
type SkipError struct {
	ItemID string
	Reason error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip %s: %v", e.ItemID, e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Reason }
