package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "busbooking"

type TokenClaims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// IssueToken signs an HS256 session token for actor, valid for ttl from now.
func IssueToken(actor Actor, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("missing session secret")
	}
	if actor.ID == "" {
		return "", fmt.Errorf("missing actor id")
	}
	if _, err := ParseRole(string(actor.Role)); err != nil {
		return "", err
	}
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken validates signature, issuer and expiry and returns the actor it names.
func VerifyToken(tokenString, secret string, now time.Time) (Actor, error) {
	if tokenString == "" {
		return Actor{}, fmt.Errorf("missing token")
	}
	if secret == "" {
		return Actor{}, fmt.Errorf("missing session secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &TokenClaims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !tok.Valid {
		return Actor{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return Actor{}, fmt.Errorf("missing subject")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: claims.Subject, Role: role}, nil
}
