package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("lock already held")
	ErrLockLost    = errors.New("lock lost")
	ErrSchema      = errors.New("schema error")
	ErrResolution  = errors.New("resolution error")
	ErrRange       = errors.New("invalid date range")
	ErrMissingData = errors.New("missing data")
)

// SchemaError reports a raw record whose required field is absent or cannot
// be parsed. It is fatal for the source file the record came from.
type SchemaError struct {
	Source string
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema: %s row %d column %q", e.Source, e.Row, e.Column)
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ResolutionError reports a change-resolution loop that did not converge
// within its iteration cap.
type ResolutionError struct {
	Day        time.Time
	Iterations int
	Pending    int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve: window %s: %d change events still pending after %d iterations",
		DateString(e.Day), e.Pending, e.Iterations)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// RangeError reports invalid date range parameters.
type RangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %s..%s: %s", DateString(e.Start), DateString(e.End), e.Reason)
}

func (e *RangeError) Is(target error) bool { return target == ErrRange }

// MissingDataError reports that no source file exists for a required day.
type MissingDataError struct {
	Day      time.Time
	Location string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("no message archive for %s under %s", DateString(e.Day), e.Location)
}

func (e *MissingDataError) Is(target error) bool { return target == ErrMissingData }
