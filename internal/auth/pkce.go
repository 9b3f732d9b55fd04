package auth

import (
	"golang.org/x/oauth2"

	"github.com/desertthunder/cur8/internal/shared"
)

const (
	verifierBytes = 64
	stateBytes    = 32
)

// GenerateVerifier returns an 86-character PKCE code verifier (RFC 7636 allows 43..128).
func GenerateVerifier() string {
	return shared.RandomToken(verifierBytes)
}

// GenerateState returns an unguessable OAuth state value.
func GenerateState() string {
	return shared.RandomToken(stateBytes)
}

// DeriveChallenge computes the S256 code challenge: base64url(SHA-256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
