package sigcontext

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/balena-os/hup-ladder/pkg/logging"
)

// WithSignalCancel is a context that will cancel itself when one of sigs is
// sent to the process, logging the signal that caused it. The cancel function
// returned frees the signal handlers and must be called. Once the context is
// cancelled the handlers are released as well, so a second ^C falls through to
// the go runtime and terminates the process outright.
func WithSignalCancel(ctx context.Context, log logging.Logger, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	sigctx, ctxcancel := context.WithCancel(ctx)

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, sigs...)

	var once sync.Once
	release := func() {
		once.Do(func() {
			signal.Stop(sigchan)
		})
	}
	cancel := func() {
		ctxcancel()
		release()
	}

	go func() {
		defer release()
		select {
		case <-sigctx.Done():
		case sig := <-sigchan:
			if log != nil {
				log.WithField("signal", sig.String()).Warn("received signal, stopping")
			}
			ctxcancel()
		}
	}()

	return sigctx, cancel
}
