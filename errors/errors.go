/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package errors provides error wrapping utilities and the error taxonomy
// used across dockyard.
//
// Every failure that leaves a component carries a [Kind] so that callers can
// decide whether to halt the pipeline, retry, or report a configuration
// problem without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no classification.
	KindUnknown Kind = iota
	// KindConfiguration marks malformed image names or missing mandatory fields.
	KindConfiguration
	// KindArchive marks I/O failures while building an archive.
	KindArchive
	// KindRegistryProtocol marks non-2xx responses from the engine or registry.
	KindRegistryProtocol
	// KindCredential marks unresolvable credentials or failing credential helpers.
	KindCredential
	// KindPullPolicy marks a pull policy that forbids a required pull.
	KindPullPolicy
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindArchive:
		return "ArchiveError"
	case KindRegistryProtocol:
		return "RegistryProtocolError"
	case KindCredential:
		return "CredentialError"
	case KindPullPolicy:
		return "PullPolicyViolation"
	default:
		return "Error"
	}
}

// Error is a classified failure with the action that failed, an optional
// detail (image name, registry, path) and the underlying cause.
type Error struct {
	Kind   Kind
	Action string
	Detail string
	Err    error
}

// Error renders the error in the same "failed to <action> (<detail>): <err>"
// form produced by [Wrap].
func (e *Error) Error() string {
	msg := "failed to " + e.Action
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap wraps an error with a descriptive action and optional detail.
// It returns a formatted error in the form "failed to <action> [(<detail>)]: <error>".
//
// Example usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap("create builder", "", err)
//	}
//
//	if err := parseFile(path); err != nil {
//	    return errors.Wrap("parse config", path, err)
//	}
func Wrap(action, detail string, err error) error {
	if err == nil {
		return nil
	}

	if detail != "" {
		return fmt.Errorf("failed to %s (%s): %w", action, detail, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// New returns a classified error. Unlike [Wrap], a nil cause still yields an
// error since the action itself is the failure.
func New(kind Kind, action, detail string, err error) error {
	return &Error{Kind: kind, Action: action, Detail: detail, Err: err}
}

// Configuration returns a [KindConfiguration] error.
func Configuration(action, detail string, err error) error {
	return New(KindConfiguration, action, detail, err)
}

// Archive returns a [KindArchive] error.
func Archive(action, detail string, err error) error {
	return New(KindArchive, action, detail, err)
}

// RegistryProtocol returns a [KindRegistryProtocol] error.
func RegistryProtocol(action, detail string, err error) error {
	return New(KindRegistryProtocol, action, detail, err)
}

// Credential returns a [KindCredential] error.
func Credential(action, detail string, err error) error {
	return New(KindCredential, action, detail, err)
}

// PullPolicy returns a [KindPullPolicy] error.
func PullPolicy(action, detail string, err error) error {
	return New(KindPullPolicy, action, detail, err)
}

// KindOf returns the kind of the outermost classified error in the chain,
// or [KindUnknown] when none is present.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether any classified error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
