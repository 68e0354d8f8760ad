package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dnldd/augur/shared"
)

const (
	// derivativesPrefix is the path segment stripped before signing.
	derivativesPrefix = "/derivatives"
)

// normalizePath strips the derivatives prefix from the provided request path.
func normalizePath(path string) string {
	return strings.TrimPrefix(path, derivativesPrefix)
}

// Signer computes venue authentication tokens.
type Signer struct {
	key []byte
}

// NewSigner initializes a signer from the provided base64 encoded secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, shared.Errorf(shared.ConfigurationError, "api secret cannot be an empty string")
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "",
			fmt.Errorf("decoding api secret: %w", err))
	}

	return &Signer{key: key}, nil
}

// Sign computes the authentication token for the provided request. The body,
// nonce and normalized path are hashed with SHA-256 and the digest is then
// authenticated with HMAC-SHA512.
func (s *Signer) Sign(path string, nonce string, body string) string {
	digest := sha256.Sum256([]byte(body + nonce + normalizePath(path)))

	mac := hmac.New(sha512.New, s.key)
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Sign computes the authentication token for the provided request using the
// base64 encoded secret.
func Sign(path string, nonce string, body string, secret string) (string, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return "", err
	}

	return signer.Sign(path, nonce, body), nil
}
