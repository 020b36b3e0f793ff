package engine

import "context"

// PasswordChecker evaluates a candidate password against the password policy.
type PasswordChecker interface {
	// CheckPassword returns the human-readable policy violations, sorted; an
	// empty slice means the password is acceptable. err is non-nil only when
	// the policy itself could not be evaluated.
	CheckPassword(ctx context.Context, password, username, email string) ([]string, error)
}
