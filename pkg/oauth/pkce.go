package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierEntropyBytes is the random byte count behind the PKCE code
	// verifier: 32 bytes gives 256 bits of entropy.
	verifierEntropyBytes = 32

	// stateEntropyBytes is the random byte count behind the OAuth state
	// parameter; 32 bytes encodes to 43 base64url characters, above the
	// 32-character minimum some authorization servers enforce.
	stateEntropyBytes = 32
)

// GeneratePKCE produces a PKCEChallenge ready for use in an authorization
// request: a 256-bit random code verifier, base64url-encoded, and its
// S256 (SHA-256) challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, challenge, err := GeneratePKCERaw()
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GeneratePKCERaw is GeneratePKCE without the PKCEChallenge wrapper, for
// callers that only need the verifier/challenge pair.
func GeneratePKCERaw() (verifier, challenge string, err error) {
	raw := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate PKCE verifier entropy: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	return verifier, challenge, nil
}

// GenerateState returns a base64url-encoded random string for the OAuth
// state parameter, binding an authorization response back to the request
// that started it and guarding against CSRF.
func GenerateState() (string, error) {
	raw := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate OAuth state entropy: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateNonce returns a random OIDC nonce; same construction as
// GenerateState, distinct name for its distinct use in ID token
// validation.
func GenerateNonce() (string, error) {
	return GenerateState()
}
