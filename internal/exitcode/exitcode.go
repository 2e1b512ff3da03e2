// Package exitcode defines exit codes for the CLI.
package exitcode

import (
	"errors"

	"tasksync/internal/service"
)

// Exit codes returned by every command.
const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, invalid task, out of range).
	UserError = 1

	// AuthError indicates an auth or config error.
	AuthError = 2

	// BackendError indicates a backend, network or local storage error.
	BackendError = 3
)

// FromError maps a failed task operation to an exit code.
func FromError(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, service.ErrInvalid):
		return UserError
	case errors.Is(err, service.ErrAuth):
		return AuthError
	default:
		return BackendError
	}
}
