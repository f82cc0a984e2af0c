package service

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every *ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError rejects a configuration update before anything changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// PersistenceError means the Config Store refused a write. The in-memory
// schedule still matches what was last committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist schedule (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// errSuperseded aborts an advance whose schedule was replaced meanwhile.
var errSuperseded = errors.New("schedule replaced during advance")

// errOracleRegression is returned when the oracle answers an increment with
// a time that does not move forward.
var errOracleRegression = errors.New("oracle increment did not advance")

// errOracleMismatch is returned when the oracle moves forward by something
// other than exactly one interval, e.g. a DST shift in a local time zone.
var errOracleMismatch = errors.New("oracle increment is not one interval")
