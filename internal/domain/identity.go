package domain

import "fmt"

// Identity is the authenticated user a session belongs to.
type Identity struct {
	UserID string
	Token  string
}

// IsZero reports whether the identity carries no token, i.e. logged out.
func (i Identity) IsZero() bool {
	return i.Token == ""
}

func (i Identity) Validate() error {
	if i.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	if i.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidIdentity)
	}
	return nil
}

// String never includes the token.
func (i Identity) String() string {
	if i.UserID == "" {
		return "anonymous"
	}
	return i.UserID
}
