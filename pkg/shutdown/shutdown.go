package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context that is cancelled on SIGINT/SIGTERM. The
// received signal is recorded as the context cause.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			cancel(fmt.Errorf("received signal %s", sig))
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
