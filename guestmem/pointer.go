package guestmem

import (
	"fmt"
	"math"
)

// PointerState is the validity of a Pointer against its region.
type PointerState uint8

const (
	// PointerUnbound is the state of the zero Pointer.
	PointerUnbound PointerState = iota
	// PointerValid means no guest call happened since capture.
	PointerValid
	// PointerStale means a guest call happened since capture. It is terminal.
	PointerStale
)

func (s PointerState) String() string {
	switch s {
	case PointerUnbound:
		return "unbound"
	case PointerValid:
		return "valid"
	case PointerStale:
		return "stale"
	default:
		return fmt.Sprintf("PointerState(%d)", uint8(s))
	}
}

// Pointer is an offset into guest memory tagged with the region generation
// it was captured at. Pointers are values; refreshing produces a new one and
// never revives an old one.
type Pointer struct {
	region     *Region
	offset     uint32
	count      uint32
	generation uint64
}

// Offset returns the byte offset into linear memory.
func (p Pointer) Offset() uint32 { return p.offset }

// Count returns the element count recorded with the pointer, zero when the
// guest returned a bare offset.
func (p Pointer) Count() uint32 { return p.count }

// Generation returns the region generation at capture.
func (p Pointer) Generation() uint64 { return p.generation }

// IsZero reports whether p is the unbound zero Pointer.
func (p Pointer) IsZero() bool { return p.region == nil }

// State reports whether p may still be used.
func (p Pointer) State() PointerState {
	switch {
	case p.region == nil:
		return PointerUnbound
	case p.generation != p.region.generation:
		return PointerStale
	default:
		return PointerValid
	}
}

// WithCount returns a copy of p with its count set to n. The generation is
// unchanged.
func (p Pointer) WithCount(n uint32) Pointer {
	p.count = n
	return p
}

// Add returns a copy of p moved by delta bytes. The result must still be a
// 32-bit offset.
func (p Pointer) Add(delta int64) (Pointer, error) {
	off := int64(p.offset) + delta
	if off < 0 || off > math.MaxUint32 {
		return Pointer{}, fmt.Errorf("guestmem: offset %d%+d: %w", p.offset, delta, ErrOutOfBounds)
	}
	p.offset = uint32(off)
	return p, nil
}

func (p Pointer) String() string {
	if p.region == nil {
		return "<unbound>"
	}
	return fmt.Sprintf("%#x[%d]@%d", p.offset, p.count, p.generation)
}
