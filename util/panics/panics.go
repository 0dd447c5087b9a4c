package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/btcsuite/btclog"
)

// HandlePanic recovers panics, logs them, and then initiates a clean shutdown.
func HandlePanic(log btclog.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	panicHandlerDone := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		close(panicHandlerDone)
	}()

	const panicHandlerTimeout = 5 * time.Second
	select {
	case <-time.After(panicHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't handle a fatal error. Exiting...")
	case <-panicHandlerDone:
	}
	log.Criticalf("Exiting")
	os.Exit(1)
}
