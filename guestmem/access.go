package guestmem

import (
	"unicode/utf8"
)

// check validates p and the range [p.offset, p.offset+n) against r.
func (r *Region) check(op string, p Pointer, n uint64) error {
	if p.region == nil {
		return &MemoryError{Op: op, Offset: p.offset, Length: n, Err: ErrUnboundPointer}
	}
	if p.region != r {
		return &MemoryError{Op: op, Offset: p.offset, Length: n, Err: ErrForeignPointer}
	}
	if p.generation != r.generation {
		return &MemoryError{
			Op:       op,
			Offset:   p.offset,
			Length:   n,
			Captured: p.generation,
			Current:  r.generation,
			Err:      ErrStalePointer,
		}
	}
	size := r.mem.Size()
	if uint64(p.offset)+n > uint64(size) {
		return &MemoryError{
			Op:       op,
			Offset:   p.offset,
			Length:   n,
			Size:     size,
			Captured: p.generation,
			Current:  r.generation,
			Err:      ErrOutOfBounds,
		}
	}
	return nil
}

// Write copies b into guest memory at p. Nothing is written unless the whole
// range fits.
func (r *Region) Write(p Pointer, b []byte) error {
	if err := r.check("write", p, uint64(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if !r.mem.Write(p.offset, b) {
		// The runtime disagreed with Size; it checks before copying.
		return &MemoryError{Op: "write", Offset: p.offset, Length: uint64(len(b)), Size: r.mem.Size(), Err: ErrOutOfBounds}
	}
	return nil
}

// WriteString copies s into guest memory at p.
func (r *Region) WriteString(p Pointer, s string) error {
	return r.Write(p, []byte(s))
}

// ReadBytes returns a copy of n bytes of guest memory at p.
func (r *Region) ReadBytes(p Pointer, n uint32) ([]byte, error) {
	if err := r.check("read", p, uint64(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	view, ok := r.mem.Read(p.offset, n)
	if !ok {
		return nil, &MemoryError{Op: "read", Offset: p.offset, Length: uint64(n), Size: r.mem.Size(), Err: ErrOutOfBounds}
	}
	copy(out, view)
	return out, nil
}

// ReadUTF8 reads n bytes at p and decodes them as strict UTF-8. On invalid
// input it returns an empty string and a *UTF8Error.
func (r *Region) ReadUTF8(p Pointer, n uint32) (string, error) {
	b, err := r.ReadBytes(p, n)
	if err != nil {
		return "", err
	}
	if i := invalidUTF8Index(b); i >= 0 {
		return "", &UTF8Error{Offset: p.offset, Length: n, Index: i}
	}
	return string(b), nil
}

// ReadSlice reads p.Count() bytes at p.
func (r *Region) ReadSlice(p Pointer) ([]byte, error) {
	return r.ReadBytes(p, p.count)
}

// ReadSliceUTF8 reads p.Count() bytes at p as UTF-8.
func (r *Region) ReadSliceUTF8(p Pointer) (string, error) {
	return r.ReadUTF8(p, p.count)
}

// invalidUTF8Index returns the index of the first byte that does not start a
// valid encoding, or -1.
func invalidUTF8Index(b []byte) int {
	if utf8.Valid(b) {
		return -1
	}
	for i := 0; i < len(b); {
		c, size := utf8.DecodeRune(b[i:])
		if c == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
