package evtbuilder

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFragment is returned when a fragment buffer is truncated
	// or its length fields are inconsistent.
	ErrMalformedFragment = errors.New("malformed fragment")
	// ErrUnknownSource is returned for fragments whose source id is not
	// present in the sources table.
	ErrUnknownSource = errors.New("unknown fragment source")
	// ErrUnknownChannel is returned when the channel map has no entry for
	// a fragment address.
	ErrUnknownChannel = errors.New("unknown channel")
)

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrLoadTable represents an error when reading a lookup table
// (channel map, calibration or crystal adjacency).
type ErrLoadTable struct {
	Table string
	Err   error
}

func (e *ErrLoadTable) Error() string {
	return fmt.Sprintf("error loading table %q: %v", e.Table, e.Err)
}

func (e *ErrLoadTable) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFragment, fmt.Sprintf(format, args...))
}
