package guestmem

import (
	"context"

	"github.com/otelwasm/guestmem/runtime"
)

type fakeMemory struct {
	buf []byte
}

func (m *fakeMemory) Read(offset, size uint32) ([]byte, bool) {
	if uint64(offset)+uint64(size) > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset : offset+size], true
}

func (m *fakeMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], data)
	return true
}

func (m *fakeMemory) Size() uint32 { return uint32(len(m.buf)) }

type fakeFunction func(ctx context.Context, params []uint64) ([]uint64, error)

func (f fakeFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params)
}

func (f fakeFunction) ParamTypes() []runtime.ValueType  { return nil }
func (f fakeFunction) ResultTypes() []runtime.ValueType { return nil }

type fakeModule struct {
	mem   *fakeMemory
	funcs map[string]fakeFunction
}

func (m *fakeModule) Function(name string) runtime.FunctionInstance {
	fn, ok := m.funcs[name]
	if !ok {
		return nil
	}
	return fn
}

func (m *fakeModule) Memory() runtime.Memory {
	if m.mem == nil {
		return nil
	}
	return m.mem
}

func (m *fakeModule) Close(context.Context) error { return nil }

// newFakeRegion returns a region over size bytes of memory whose guest
// exports "ptr" (returns 16), "noop" and "trap".
func newFakeRegion(size int) (*Region, *fakeModule) {
	mod := &fakeModule{
		mem: &fakeMemory{buf: make([]byte, size)},
		funcs: map[string]fakeFunction{
			"ptr": func(context.Context, []uint64) ([]uint64, error) {
				return []uint64{16}, nil
			},
			"noop": func(context.Context, []uint64) ([]uint64, error) {
				return nil, nil
			},
			"trap": func(context.Context, []uint64) ([]uint64, error) {
				return nil, errTrap
			},
		},
	}
	r, err := Bind(mod)
	if err != nil {
		panic(err)
	}
	return r, mod
}
