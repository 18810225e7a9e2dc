// Package claim implements one-time device claim tokens.
//
// A token is issued (raw secret, its hash, and a claim URL), registered
// against a device by hash, and later presented by the device to move its
// record from unclaimed to claimed exactly once.
//
// Components:
//   - Codec: token generation, hashing and claim URL formatting (no I/O)
//   - Store / SQLStore: persistence on a database.Manager
//   - Service: the issue, register, validate and claim operations
//   - SQLStore.List: paged device inventory for operators
//
// Security Considerations:
//   - Tokens carry 256 bits from crypto/rand
//   - Only the SHA-256 hash is stored; raw tokens are never persisted or logged
//   - Validate returns a boolean, never the matching record
//
// Concurrency:
//
// No in-process locks guard the claim transition. SQLStore.Claim is one
// conditional UPDATE ("... WHERE token_hash = $2 AND claimed = FALSE"), so
// of any number of concurrent callers, in this process or another sharing
// the database, at most one succeeds and the rest get ErrNotFound.
//
// "Unknown token" and "already claimed" are both ErrNotFound. Telling them
// apart would need a read before the write, which reopens the double-claim
// race the single statement closes.
package claim
