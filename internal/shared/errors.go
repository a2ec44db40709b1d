package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleNotHeld occurs when switching to a role the user does not have.
	ErrRoleNotHeld = errors.New("role not held by user")
)

// UserSafeMessage returns a message suitable for end users. Known domain
// errors pass through; anything else is collapsed to a generic message so
// internals never leak into responses.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrRoleNotHeld):
		return "You do not have that role"
	default:
		return "Something went wrong, please try again"
	}
}
