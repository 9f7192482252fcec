// Package crypto provides cryptographic operations for cipherstore.
//
// Record rows can be sealed at rest with AES-256-GCM:
//   - 32-byte key derived from the store passphrase via PBKDF2
//   - 12-byte random nonce per encryption operation
//
// Key derivation uses PBKDF2-HMAC-SHA256 with a 32-byte random salt
// (stored unencrypted) and 210,000 iterations.
//
// Callers are identified by Ed25519 keys. An identity's account address is
// derived from its public key, and the transport verifies signatures with
// Verify before passing the address to the record store.
//
// The record ciphertext words themselves are never decrypted here.
package crypto
