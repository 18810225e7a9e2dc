package database

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// tlsMinVersion is the minimum TLS version for encrypted store connections.
const tlsMinVersion = tls.VersionTLS12

// TLSPolicy is the transport security applied to store connections.
type TLSPolicy int

const (
	// TLSDisabled connects in plaintext.
	TLSDisabled TLSPolicy = iota

	// TLSVerified encrypts and verifies the server certificate chain.
	TLSVerified

	// TLSUnverified encrypts but accepts any server certificate.
	TLSUnverified
)

// String returns the policy name used in logs and health output.
func (p TLSPolicy) String() string {
	switch p {
	case TLSVerified:
		return "verified"
	case TLSUnverified:
		return "unverified"
	default:
		return "disabled"
	}
}

// SelectTLS chooses the transport security for a postgres connection.
//
// Exactly one policy applies, in this fixed order:
//  1. CA material (SSLCAFile, else SSLCA) → verified against that CA
//  2. AllowSelfSigned → encrypted, certificate not verified
//  3. composite URL with no explicit choice → verified against system roots
//  4. discrete fields with no explicit choice → no encryption
//
// The returned tls.Config has no ServerName; the caller sets it once the
// target host is known. It is nil for TLSDisabled.
func SelectTLS(cfg Config) (TLSPolicy, *tls.Config, error) {
	caPEM, err := loadCA(cfg)
	if err != nil {
		return TLSDisabled, nil, err
	}

	switch {
	case caPEM != "":
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return TLSDisabled, nil, fmt.Errorf("%w: no certificates found in CA material", ErrInvalidConfig)
		}
		return TLSVerified, &tls.Config{
			MinVersion: tlsMinVersion,
			RootCAs:    pool,
		}, nil

	case cfg.AllowSelfSigned:
		return TLSUnverified, &tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: true, //nolint:gosec // explicit development opt-in
		}, nil

	case cfg.usesURL():
		return TLSVerified, &tls.Config{
			MinVersion: tlsMinVersion,
		}, nil

	default:
		return TLSDisabled, nil, nil
	}
}

// loadCA returns the configured CA bundle, preferring the file path.
func loadCA(cfg Config) (string, error) {
	if cfg.SSLCAFile != "" {
		data, err := os.ReadFile(cfg.SSLCAFile)
		if err != nil {
			return "", fmt.Errorf("%w: reading CA file: %w", ErrInvalidConfig, err)
		}
		return string(data), nil
	}
	return unescapePEM(cfg.SSLCA), nil
}

// unescapePEM turns escaped "\n" sequences into real newlines.
func unescapePEM(s string) string {
	if strings.Contains(s, `\n`) {
		return strings.ReplaceAll(s, `\n`, "\n")
	}
	return s
}
