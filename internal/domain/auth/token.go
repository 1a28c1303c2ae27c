package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer token claims issued by the session service.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC-signed bearer tokens.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a TokenVerifier for tokens signed with secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify parses the token and returns the actor it identifies.
func (v *TokenVerifier) Verify(raw string) (Actor, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Actor{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Actor{}, errors.Wrap(ErrUnauthenticated, "missing subject or role")
	}
	return Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for the actor. The session service owns issuance in
// production; seed tooling and tests use this.
func Issue(secret []byte, a Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}
