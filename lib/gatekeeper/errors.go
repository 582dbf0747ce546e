// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import "fmt"

// ValidationError is a rejection of the caller's payload. The message
// crosses the wire verbatim, so it names the offending field in terms
// the submitting user can act on.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// validationf builds a ValidationError.
func validationf(format string, args ...any) ValidationError {
	return ValidationError(fmt.Sprintf(format, args...))
}

// PermissionError is a rejection of the caller's authority. Like
// ValidationError it crosses the wire verbatim.
type PermissionError string

func (e PermissionError) Error() string { return string(e) }
