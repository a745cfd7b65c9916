package guestmem

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a range exceeds the current memory size.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrStalePointer is returned when a pointer was captured before the most
	// recent guest call.
	ErrStalePointer = errors.New("stale pointer")
	// ErrUnboundPointer is returned for the zero Pointer.
	ErrUnboundPointer = errors.New("unbound pointer")
	// ErrForeignPointer is returned when a pointer was captured from another
	// region.
	ErrForeignPointer = errors.New("pointer belongs to another region")
	// ErrInvalidUTF8 is returned when a byte range is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
	// ErrNoMemory is returned by Bind when the module exposes no memory.
	ErrNoMemory = errors.New("module has no memory")
	// ErrExportNotFound is returned when the named export does not exist.
	ErrExportNotFound = errors.New("export not found")
	// ErrUnexpectedResults is returned when an export returns a different
	// number of results than its ABI promises.
	ErrUnexpectedResults = errors.New("unexpected results")
)

// MemoryError describes a failed bounds or generation check.
type MemoryError struct {
	// Op is the operation that failed: "write" or "read".
	Op     string
	Offset uint32
	Length uint64
	// Size is the memory size observed at the time of the check.
	Size uint32
	// Captured and Current are the pointer and region generations.
	Captured uint64
	Current  uint64
	Err      error
}

func (e *MemoryError) Error() string {
	switch {
	case errors.Is(e.Err, ErrStalePointer):
		return fmt.Sprintf("guestmem: %s at %d: %v (captured at generation %d, region is at %d)",
			e.Op, e.Offset, e.Err, e.Captured, e.Current)
	case errors.Is(e.Err, ErrOutOfBounds):
		return fmt.Sprintf("guestmem: %s [%d, %d) exceeds memory size %d: %v",
			e.Op, e.Offset, uint64(e.Offset)+e.Length, e.Size, e.Err)
	default:
		return fmt.Sprintf("guestmem: %s at %d: %v", e.Op, e.Offset, e.Err)
	}
}

func (e *MemoryError) Unwrap() error { return e.Err }

// UTF8Error is returned by ReadUTF8 when the bytes read are not valid UTF-8.
// It is deliberately not a MemoryError: the range itself was readable.
type UTF8Error struct {
	Offset uint32
	Length uint32
	// Index is the position of the first invalid byte within the range.
	Index int
}

func (e *UTF8Error) Error() string {
	return fmt.Sprintf("guestmem: %d bytes at %d: %v at index %d", e.Length, e.Offset, ErrInvalidUTF8, e.Index)
}

func (e *UTF8Error) Unwrap() error { return ErrInvalidUTF8 }

// CallError is returned when a guest export is missing or its invocation
// failed or trapped.
type CallError struct {
	Export string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("guestmem: call %q: %v", e.Export, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
