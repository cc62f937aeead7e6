// Command convert2nwbCaImg converts analysed two-photon calcium imaging
// linescans and paired somatic current clamp recordings into a Neurodata
// Without Borders file.
package main

import (
	"errors"
	"fmt"
	"os"
)

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}

// usageError marks failures caused by the invocation rather than the data.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
