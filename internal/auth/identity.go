// Package auth resolves the session identity from what the login flow hands
// over: a bearer token and, optionally, the user id.
package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// userIDClaims are checked in order.
var userIDClaims = []string{"userId", "id", "sub"}

// ResolveIdentity builds an Identity. An empty token yields the zero
// identity (logged out). An empty userID is read from the token claims; the
// signature is not verified because the backend does that on every request.
func ResolveIdentity(token, userID string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return domain.Identity{}, nil
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		var err error
		userID, err = UserIDFromToken(token)
		if err != nil {
			return domain.Identity{}, err
		}
	}

	id := domain.Identity{UserID: userID, Token: token}
	return id, id.Validate()
}

func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: token is not a JWT, pass the user id explicitly: %v", domain.ErrInvalidIdentity, err)
	}

	for _, key := range userIDClaims {
		if v, ok := claims[key]; ok {
			if s := claimString(v); s != "" {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("%w: token has no user id claim", domain.ErrInvalidIdentity)
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}
