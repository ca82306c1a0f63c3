package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/provide-io/bundlespec/pkg/descriptor"
	"github.com/provide-io/bundlespec/pkg/driver"
)

// Exit codes.
const (
	exitOK                  = 0
	exitError               = 1
	exitMalformedDescriptor = 2
	exitMissingEntryPoint   = 3
	exitSourcePathNotFound  = 4
	exitModuleListConflict  = 5
)

// exitErr ends a command with a code after the command printed its own output.
type exitErr struct {
	code int
}

func (e *exitErr) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	var failure *driver.Failure
	if errors.As(err, &failure) {
		// Signal deaths report -1.
		if failure.ExitCode <= 0 {
			return exitError
		}
		return failure.ExitCode
	}

	switch {
	case errors.Is(err, descriptor.ErrMalformedDescriptor):
		return exitMalformedDescriptor
	case errors.Is(err, descriptor.ErrMissingEntryPoint):
		return exitMissingEntryPoint
	case errors.Is(err, descriptor.ErrSourcePathNotFound):
		return exitSourcePathNotFound
	case errors.Is(err, descriptor.ErrModuleListConflict):
		return exitModuleListConflict
	}
	return exitError
}

// printError writes err on stderr. Descriptor errors fit on one line and
// already start with their kind.
func (a *app) printError(err error) {
	var ee *exitErr
	if errors.As(err, &ee) {
		return
	}
	var failure *driver.Failure
	if errors.As(err, &failure) {
		// Tool output is passed through as is.
		fmt.Fprintln(a.stderr, errorStyle.Render(failure.Error()))
		return
	}

	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	var derr *descriptor.Error
	if !errors.As(err, &derr) {
		msg = "Error: " + msg
	}
	fmt.Fprintln(a.stderr, errorStyle.Render(msg))
}
