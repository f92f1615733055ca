package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/errors"
)

// HandleFatalError prints the friendliest available form of err and exits.
func HandleFatalError(err error) {
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic converts a panic into a logged crash so the process never
// dies with a bare stack trace. Meant to be deferred from main.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).
			Errorf("Unexpected crash: %v", r)
		os.Exit(1)
	}
}
