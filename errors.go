package relaypager

import (
	"errors"
	"fmt"
)

// ErrConflictingOrders is returned when the relation is ordered by multiple
// attributes in different directions.
var ErrConflictingOrders = errors.New("ordering by multiple attributes requires they are all ordered in the same direction")

// OrderValueError is returned when an ordering clause is not a plain
// (optionally table-qualified) column reference.
type OrderValueError struct {
	Clause string
	Reason string
}

func (e *OrderValueError) Error() string {
	return fmt.Sprintf("invalid order value '%s': %s", e.Clause, e.Reason)
}

// InvalidCursorError is returned when a cursor token cannot be decoded.
type InvalidCursorError struct {
	Cursor string
	Err    error
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("couldn't parse cursor: %s", e.Cursor)
}

func (e *InvalidCursorError) Unwrap() error {
	return e.Err
}

// CursorNotFoundError is returned when the record a cursor refers to does not
// exist in the relation.
type CursorNotFoundError struct {
	Cursor string
}

func (e *CursorNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find item for cursor: %s", e.Cursor)
}
