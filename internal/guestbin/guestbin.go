// Package guestbin assembles the reference "wasm is cool" guest module
// directly as WebAssembly binary, so the demo and the tests need no guest
// toolchain.
//
// The guest keeps its scratch buffer offset in a mutable global. Its
// transform export appends a fixed suffix to the bytes the host wrote at
// that offset and returns the new length. With Relocate set, transform first
// moves the buffer to a higher offset, so a pointer captured before the call
// no longer addresses the result.
package guestbin

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned by Build for a layout the guest cannot honor.
var ErrInvalidOptions = errors.New("guestbin: invalid options")

const (
	// DefaultPointerExport is the name of the buffer pointer getter.
	DefaultPointerExport = "get_buffer_pointer"
	// DefaultTransformExport is the name of the transform function.
	DefaultTransformExport = "transform"
	// SliceExport returns the buffer offset and last result length packed
	// into an i64 as offset<<32 | length.
	SliceExport = "get_buffer_slice"
	// GrowExport grows memory by its argument in pages and returns the
	// previous page count, or -1.
	GrowExport = "grow"
	// NoopExport does nothing.
	NoopExport = "noop"

	// LogModule and LogFunction name the optional host import
	// log(level i32, ptr i32, len i32).
	LogModule   = "env"
	LogFunction = "log"

	// DefaultBufferOffset is the initial scratch buffer offset.
	DefaultBufferOffset = 1024
	// RelocateStride is how far Relocate moves the buffer on each transform.
	RelocateStride = 2048
	// DefaultSuffix is what transform appends.
	DefaultSuffix = " Wasm is cool!"

	// PageSize is the size of one linear memory page in bytes.
	PageSize = 65536

	suffixOffset = 64
)

// Options controls the shape of the assembled guest.
type Options struct {
	PointerExport   string
	TransformExport string
	BufferOffset    uint32
	Suffix          string

	// Relocate moves the buffer by RelocateStride before appending.
	Relocate bool
	// ImportLog makes transform report its result through env.log.
	ImportLog bool
	// OmitMemoryExport defines memory without exporting it.
	OmitMemoryExport bool
}

func (o *Options) defaults() {
	if o.PointerExport == "" {
		o.PointerExport = DefaultPointerExport
	}
	if o.TransformExport == "" {
		o.TransformExport = DefaultTransformExport
	}
	if o.BufferOffset == 0 {
		o.BufferOffset = DefaultBufferOffset
	}
	if o.Suffix == "" {
		o.Suffix = DefaultSuffix
	}
}

// validate checks that the buffer starts inside the first page and above
// the suffix, so host input written at the buffer never overwrites it.
func (o *Options) validate() error {
	if o.BufferOffset >= PageSize {
		return fmt.Errorf("%w: buffer offset %d beyond the first page", ErrInvalidOptions, o.BufferOffset)
	}
	if end := uint64(suffixOffset) + uint64(len(o.Suffix)); end > uint64(o.BufferOffset) {
		return fmt.Errorf("%w: suffix [%d, %d) overlaps buffer at %d", ErrInvalidOptions, suffixOffset, end, o.BufferOffset)
	}
	return nil
}

// Default returns the guest with default options.
func Default() []byte {
	return MustBuild(Options{})
}

// MustBuild is Build for options known to be valid. It panics otherwise.
func MustBuild(opts Options) []byte {
	module, err := Build(opts)
	if err != nil {
		panic(err)
	}
	return module
}

// Build assembles a guest module for opts.
func Build(opts Options) ([]byte, error) {
	opts.defaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	module := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}

	appendSection := func(sectionID byte, payload []byte) {
		module = append(module, sectionID)
		module = append(module, encodeULEB128(uint32(len(payload)))...)
		module = append(module, payload...)
	}

	// Type section:
	// 0: () -> i32
	// 1: (i32) -> i32
	// 2: () -> ()
	// 3: () -> i64
	// 4: (i32, i32, i32) -> ()
	appendSection(0x01, []byte{
		0x05,
		0x60, 0x00, 0x01, 0x7f,
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x00, 0x00,
		0x60, 0x00, 0x01, 0x7e,
		0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00,
	})

	// Imported functions take the lowest indices.
	var base uint32
	if opts.ImportLog {
		payload := []byte{0x01}
		payload = append(payload, encodeName(LogModule)...)
		payload = append(payload, encodeName(LogFunction)...)
		payload = append(payload, 0x00, 0x04) // kind=func, type index 4
		appendSection(0x02, payload)
		base = 1
	}

	// Function section, in code order:
	// pointer getter, transform, slice getter, grow, noop.
	appendSection(0x03, []byte{0x05, 0x00, 0x01, 0x03, 0x01, 0x02})

	// Memory section: one memory, min 1 page, no max.
	appendSection(0x05, []byte{0x01, 0x00, 0x01})

	// Global section: 0 = buffer offset, 1 = last result length.
	globals := []byte{0x02}
	globals = append(globals, 0x7f, 0x01, 0x41)
	globals = append(globals, encodeSLEB128(int32(opts.BufferOffset))...)
	globals = append(globals, 0x0b)
	globals = append(globals, 0x7f, 0x01, 0x41, 0x00, 0x0b)
	appendSection(0x06, globals)

	// Export section.
	type export struct {
		name  string
		kind  byte
		index uint32
	}
	var exports []export
	if !opts.OmitMemoryExport {
		exports = append(exports, export{"memory", 0x02, 0})
	}
	exports = append(exports,
		export{opts.PointerExport, 0x00, base},
		export{opts.TransformExport, 0x00, base + 1},
		export{SliceExport, 0x00, base + 2},
		export{GrowExport, 0x00, base + 3},
		export{NoopExport, 0x00, base + 4},
	)
	exportPayload := encodeULEB128(uint32(len(exports)))
	for _, e := range exports {
		exportPayload = append(exportPayload, encodeName(e.name)...)
		exportPayload = append(exportPayload, e.kind)
		exportPayload = append(exportPayload, encodeULEB128(e.index)...)
	}
	appendSection(0x07, exportPayload)

	bodies := [][]byte{
		pointerBody(),
		transformBody(opts),
		sliceBody(),
		growBody(),
		{0x00, 0x0b},
	}
	codePayload := encodeULEB128(uint32(len(bodies)))
	for _, body := range bodies {
		codePayload = append(codePayload, encodeULEB128(uint32(len(body)))...)
		codePayload = append(codePayload, body...)
	}
	appendSection(0x0a, codePayload)

	// Data section: the suffix lives at suffixOffset.
	data := []byte{0x01, 0x00, 0x41}
	data = append(data, encodeSLEB128(suffixOffset)...)
	data = append(data, 0x0b)
	data = append(data, encodeULEB128(uint32(len(opts.Suffix)))...)
	data = append(data, opts.Suffix...)
	appendSection(0x0b, data)

	return module, nil
}

func pointerBody() []byte {
	return []byte{
		0x00,       // local decl count
		0x23, 0x00, // global.get 0
		0x0b, // end
	}
}

// transformBody appends the suffix after the input at the buffer and returns
// the new length. Out-of-range lengths trap inside memory.copy.
func transformBody(opts Options) []byte {
	suffixLen := encodeSLEB128(int32(len(opts.Suffix)))
	stride := encodeSLEB128(RelocateStride)

	body := []byte{0x00} // local decl count

	if opts.Relocate {
		// memory.copy(dst=global0+stride, src=global0, n=len)
		body = append(body, 0x23, 0x00, 0x41)
		body = append(body, stride...)
		body = append(body, 0x6a)       // i32.add
		body = append(body, 0x23, 0x00) // global.get 0
		body = append(body, 0x20, 0x00) // local.get 0
		body = append(body, 0xfc, 0x0a, 0x00, 0x00)
		// global0 = global0 + stride
		body = append(body, 0x23, 0x00, 0x41)
		body = append(body, stride...)
		body = append(body, 0x6a, 0x24, 0x00)
	}

	// memory.copy(dst=global0+len, src=suffixOffset, n=len(suffix))
	body = append(body, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x41)
	body = append(body, encodeSLEB128(suffixOffset)...)
	body = append(body, 0x41)
	body = append(body, suffixLen...)
	body = append(body, 0xfc, 0x0a, 0x00, 0x00)

	// global1 = len + len(suffix)
	body = append(body, 0x20, 0x00, 0x41)
	body = append(body, suffixLen...)
	body = append(body, 0x6a, 0x24, 0x01)

	if opts.ImportLog {
		// log(0, global0, global1)
		body = append(body, 0x41, 0x00, 0x23, 0x00, 0x23, 0x01, 0x10, 0x00)
	}

	body = append(body, 0x23, 0x01) // global.get 1
	return append(body, 0x0b)
}

func sliceBody() []byte {
	return []byte{
		0x00,
		0x23, 0x00, // global.get 0
		0xad,       // i64.extend_i32_u
		0x42, 0x20, // i64.const 32
		0x86,       // i64.shl
		0x23, 0x01, // global.get 1
		0xad, // i64.extend_i32_u
		0x84, // i64.or
		0x0b,
	}
}

func growBody() []byte {
	return []byte{
		0x00,
		0x20, 0x00, // local.get 0
		0x40, 0x00, // memory.grow 0
		0x0b,
	}
}
