package domain

import "time"

// RoleOperator may trigger certificate runs for any event.
const RoleOperator = "operator"

// Principal is the authenticated caller of an API request.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenIssuer issues signed API tokens.
type TokenIssuer interface {
	Issue(subject, email string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns its principal.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}
