package apiclient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "swiftconvert"
	keyringUser    = "bearer-token"
)

var (
	ErrTokenNotFound = errors.New("no access token stored; run `swiftconvert auth login`")
	ErrInvalidToken  = errors.New("invalid token format")
)

var tokenAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384,
	jose.PS256,
	jose.EdDSA,
	jose.HS256,
}

// TokenInfo holds the claims shown by `auth status`. The signature is not
// verified; the service does that.
type TokenInfo struct {
	Subject  string
	Issuer   string
	IssuedAt time.Time
	Expiry   time.Time
}

// Expired reports whether the token carries an expiry before now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && t.Expiry.Before(now)
}

// StoreToken saves the bearer token in the OS keychain.
func StoreToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token. Removing a missing token is not an error.
func DeleteToken() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// ResolveToken prefers an explicit token (environment) over the keychain.
// A missing token and an unreachable keychain both match ErrTokenNotFound.
func ResolveToken(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	token, err := keyring.Get(keyringService, keyringUser)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", ErrTokenNotFound
	case err != nil:
		// No usable keychain (e.g. no Secret Service on a headless host).
		return "", fmt.Errorf("%w: keychain unavailable: %v", ErrTokenNotFound, err)
	}
	return token, nil
}

// InspectToken decodes the JWT claims of token without verifying it.
func InspectToken(token string) (*TokenInfo, error) {
	tok, err := jwt.ParseSigned(token, tokenAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims jwt.Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	info := &TokenInfo{Subject: claims.Subject, Issuer: claims.Issuer}
	if claims.Expiry != nil {
		info.Expiry = claims.Expiry.Time()
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time()
	}
	return info, nil
}
