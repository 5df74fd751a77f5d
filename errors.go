package huff

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTree indicates a tree built from an empty frequency table was
	// asked for its root, leaf count, codes or header. Encode and Decode treat
	// it as "nothing to do".
	ErrEmptyTree = errors.New("the tree is empty")
	// ErrFormat indicates a truncated or inconsistent archive.
	ErrFormat = errors.New("file format error")
	// ErrUnknownSymbol indicates a symbol with no leaf in the tree.
	ErrUnknownSymbol = errors.New("symbol not in code table")
	// ErrInputTooLarge indicates an input longer than a 32-bit count can describe.
	ErrInputTooLarge = errors.New("input too large")
	// ErrDecodeLimit indicates an archive that would decode past the configured limit.
	ErrDecodeLimit = errors.New("decoded size exceeds limit")
)

// FormatError describes where and why an archive was rejected.
type FormatError struct {
	Offset int64  // byte offset in the archive
	Reason string // what was wrong
	Err    error  // underlying read error, if any
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at offset %d: %s: %v", ErrFormat, e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s at offset %d: %s", ErrFormat, e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFormat) hold for every FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(offset int64, err error, format string, args ...any) error {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...), Err: err}
}
