package matchctl

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/circlematch/internal/adapters/http/api"
)

const tokenTTL = time.Hour

// MintToken signs a short-lived user token the server will accept.
func MintToken(secret, projectURL, userID string) (string, error) {
	auth, err := api.NewAuthenticator(secret, projectURL, "")
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    auth.Issuer(),
		Audience:  jwt.ClaimStrings{auth.Audience()},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}
