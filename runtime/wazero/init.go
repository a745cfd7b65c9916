// Package wazero registers the wazero-backed runtime.Runtime. Import it for
// its side effect.
package wazero

import (
	"github.com/otelwasm/guestmem/runtime"
)

func init() {
	runtime.Register(runtime.TypeWazero, newWazeroRuntime)
}
