// Command tally reconciles carrier usage reports into accounting invoices.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "tally:", err)
		}
		os.Exit(1)
	}
}

// exitError ends the process with status 1 without printing; the command
// has already reported the problem.
type exitError struct{ msg string }

func (e exitError) Error() string { return e.msg }
