package cmd

import (
	"fmt"
	"io"
	"strings"
)

// printErrorChain renders an error and its causes as
//
//	Error: <top message>
//	  Caused by: <cause>
//	    Caused by: <cause>
//
// so chained context reads top-down.
func printErrorChain(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", headline(err))
	indent := 1
	for {
		cause := unwrapCause(err)
		if cause == nil {
			return
		}
		// A sentinel already rendered as the current message's prefix
		// adds nothing to the chain.
		if strings.HasPrefix(err.Error(), cause.Error()) {
			err = cause
			continue
		}
		fmt.Fprintf(w, "%sCaused by: %s\n", strings.Repeat("  ", indent), headline(cause))
		err = cause
		indent++
	}
}

// unwrapCause returns the error's cause. For errors wrapping several
// errors, the last one is the cause; the earlier ones classify it.
func unwrapCause(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		if errs := e.Unwrap(); len(errs) > 0 {
			return errs[len(errs)-1]
		}
	}
	return nil
}

// headline strips the cause's own rendering from an error message, leaving
// the context this error added.
func headline(err error) string {
	msg := err.Error()
	if cause := unwrapCause(err); cause != nil {
		msg = strings.TrimSuffix(msg, ": "+cause.Error())
	}
	return msg
}
