package claim

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
)

const (
	// tokenBytes is the entropy of a claim token (256 bits).
	tokenBytes = 32

	// encodedLen is the base64url length of 32 bytes without padding.
	encodedLen = 43

	// DefaultBaseURL is used when no public base URL is configured.
	DefaultBaseURL = "http://localhost:3000/"
)

// GenerateToken returns a new raw claim token: 32 random bytes, base64url
// encoded without padding.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken derives the stored form of a raw token: SHA-256, base64url
// encoded without padding. Raw tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// IsTokenHash reports whether s has the shape of a HashToken result.
func IsTokenHash(s string) bool {
	if len(s) != encodedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// Codec issues tokens and builds claim URLs against a public base URL.
type Codec struct {
	base *url.URL
}

// NewCodec creates a Codec. An empty baseURL uses DefaultBaseURL.
// The base must be absolute (scheme and host).
func NewCodec(baseURL string) (*Codec, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Codec{base: u}, nil
}

// ClaimURL returns <base>/claim?token=<raw>, with exactly one slash before
// "claim" whether or not the base ends in one.
func (c *Codec) ClaimURL(raw string) string {
	u := c.base.JoinPath("claim")
	u.RawQuery = url.Values{"token": {raw}}.Encode()
	return u.String()
}

// Issue generates a token and derives its hash and claim URL.
// Nothing is persisted.
func (c *Codec) Issue() (IssuedToken, error) {
	raw, err := GenerateToken()
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Raw:  raw,
		Hash: HashToken(raw),
		URL:  c.ClaimURL(raw),
	}, nil
}
