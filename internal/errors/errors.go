// Copyright (c) 2025 DataSender
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for run-level reporting.
// Every failure of a pipeline run carries a machine-readable Kind, which the
// command layer maps to a process exit code so that schedulers and monitors can
// tell a configuration problem from an unreachable server or a broken export.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Config indicates a missing, malformed or incomplete configuration document.
	Config Kind = "config"
	// Connectivity indicates an unreachable server or an authentication failure
	// (data source, mailbox or mail relay).
	Connectivity Kind = "connectivity"
	// Export indicates a query or serialization failure.
	Export Kind = "export"
	// NotFound indicates that an acknowledgment referenced a file that is not in
	// the output folder. It is logged and never fatal.
	NotFound Kind = "not_found"
	// Lock indicates the run lock could not be created or inspected.
	Lock Kind = "lock"
)

// Exit codes reported by the CLI.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitSkipped      = 10
	ExitLocked       = 11
	ExitExport       = 65
	ExitConnectivity = 69
	ExitConfig       = 78
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case Config, Lock:
		return ExitConfig
	case Connectivity:
		return ExitConnectivity
	case Export:
		return ExitExport
	default:
		return ExitFailure
	}
}
