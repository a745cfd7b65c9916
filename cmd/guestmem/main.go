// Command guestmem loads a guest module and runs the passing-data exchange
// against it: the host writes a string into guest memory, the guest
// transforms it in place and the host reads the result back.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
