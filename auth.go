package orbit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by an Orbit access token.
type TokenClaims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// IdentityFromToken extracts the numeric user id and expiry from an access
// token without verifying its signature. Verification is the server's job;
// the client only needs the claims to know who it is acting as before the
// identity endpoint has been consulted.
func IdentityFromToken(token string) (int64, time.Time, error) {
	var claims TokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	id := claims.UserID
	if id == 0 && claims.Subject != "" {
		parsed, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("token subject %q is not a user id", claims.Subject)
		}
		id = parsed
	}
	if id == 0 {
		return 0, time.Time{}, fmt.Errorf("token carries no user id")
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return id, expires, nil
}
