package claim

import (
	"log/slog"
	"strings"
	"time"
)

// Field limits for registration.
const (
	// MaxUniqueIDLength is the maximum length of a device unique_id.
	MaxUniqueIDLength = 255

	// MaxNameLength is the maximum length of a device name.
	MaxNameLength = 255
)

// DeviceRecord is one registered device.
//
// TokenHash is never serialised: it identifies the device's claim token and
// is only ever compared, never shown.
type DeviceRecord struct {
	ID        string     `json:"id"`
	UniqueID  string     `json:"unique_id"`
	TokenHash string     `json:"-"`
	Claimed   bool       `json:"claimed"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// IssuedToken is a freshly generated claim token.
//
// Raw and URL are secrets handed to the caller exactly once. They are
// redacted when the value is logged through slog.
type IssuedToken struct {
	Raw  string `json:"token"`
	Hash string `json:"token_hash"`
	URL  string `json:"claim_url"`
}

// LogValue implements slog.LogValuer.
func (t IssuedToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token", "[REDACTED]"),
		slog.String("claim_url", "[REDACTED]"),
	)
}

// RegisterRequest describes a device to persist.
//
// Exactly one of Token (the raw secret, hashed here) or TokenHash (an
// already-derived digest) must be set.
type RegisterRequest struct {
	UniqueID  string `json:"unique_id"`
	Token     string `json:"token,omitempty"`
	TokenHash string `json:"token_hash,omitempty"`
	Name      string `json:"name,omitempty"`
}

// LogValue implements slog.LogValuer, omitting the token and hash.
func (r RegisterRequest) LogValue() slog.Value {
	return slog.GroupValue(slog.String("unique_id", r.UniqueID))
}

// Resolve validates the request and returns the values to store.
func (r RegisterRequest) Resolve() (uniqueID, tokenHash, name string, err error) {
	uniqueID = strings.TrimSpace(r.UniqueID)
	name = strings.TrimSpace(r.Name)

	switch {
	case uniqueID == "":
		return "", "", "", invalid("unique_id is required")
	case len(uniqueID) > MaxUniqueIDLength:
		return "", "", "", invalid("unique_id exceeds %d characters", MaxUniqueIDLength)
	case len(name) > MaxNameLength:
		return "", "", "", invalid("name exceeds %d characters", MaxNameLength)
	}

	switch {
	case r.Token != "" && r.TokenHash != "":
		return "", "", "", invalid("provide token or token_hash, not both")
	case r.Token != "":
		tokenHash = HashToken(r.Token)
	case r.TokenHash != "":
		if !IsTokenHash(r.TokenHash) {
			return "", "", "", invalid("token_hash is not a valid digest")
		}
		tokenHash = r.TokenHash
	default:
		return "", "", "", invalid("token or token_hash is required")
	}

	return uniqueID, tokenHash, name, nil
}
