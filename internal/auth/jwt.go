package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoKey        = errors.New("no verification key configured")
)

// Claims are the session-token claims the identity provider is configured to emit.
// Pla is the provider's compact plan claim (e.g. "u:plus"); Plan wins when both are set.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Plan  string `json:"plan,omitempty"`
	Pla   string `json:"pla,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) identity() Identity {
	plan := c.Plan
	if plan == "" {
		plan = c.Pla
	}
	return Identity{
		Subject: c.Subject,
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
		Name:    strings.TrimSpace(c.Name),
		Plan:    plan,
	}
}

// Verifier checks identity-provider tokens: RS256 against a PEM public key in
// production, HS256 against a shared secret for local development.
type Verifier struct {
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
}

func NewVerifier(secret, publicKeyPEM, issuer string) (*Verifier, error) {
	v := &Verifier{issuer: issuer}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
	}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if v.publicKey == nil && v.secret == nil {
		return nil, ErrNoKey
	}
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.publicKey != nil {
			return v.publicKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.secret != nil {
			return v.secret, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func (v *Verifier) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	id := claims.identity()
	if id.Email == "" {
		return Identity{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return id, nil
}

// Sign issues an HS256 token; used by the local dev token tool and tests.
func Sign(secret, issuer string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Plan:  id.Plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
