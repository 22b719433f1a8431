// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package burn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	message string
}

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.message
}

// IsValidation reports whether err is, or wraps, a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvariantError is raised when persisted state contradicts itself mid-step.
// The step that observed it must not commit.
type InvariantError struct {
	message string
}

// NewInvariantError creates an invariant error.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{message: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.message
}

// IsInvariant reports whether err is, or wraps, an invariant error.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// ExternalCallError reports a failed or unanswered collaborator call after a local debit
// that has been reverted.
type ExternalCallError struct {
	Op    string
	Cause error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s: external call failed: %v", e.Op, e.Cause)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Cause
}

// IsExternalCall reports whether err is, or wraps, an external call failure.
func IsExternalCall(err error) bool {
	var ee *ExternalCallError
	return errors.As(err, &ee)
}

// StoppedError rejects mutations while an engine is administratively paused.
type StoppedError struct {
	Engine string
}

func (e *StoppedError) Error() string {
	return e.Engine + " is stopped"
}

// IsStopped reports whether err is, or wraps, a stopped error.
func IsStopped(err error) bool {
	var se *StoppedError
	return errors.As(err, &se)
}
