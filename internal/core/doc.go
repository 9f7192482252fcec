// Package core implements the per-account encrypted record store.
//
// Each account owns exactly one record: five opaque 32-byte ciphertext
// words, a caller-supplied nonce and an encryption key reference. The
// store never looks inside the ciphertext.
//
// Operations:
//   - StoreEncryptedData: create or fully replace the caller's record
//   - UpdateEncryptionKey: move the caller's key reference, nothing else
//   - GetEncryptedUserData: read any account's record (zero value if absent)
//   - Events/Subscribe: durable and live DataStored/KeyUpdated notifications
//
// Mutations are always keyed by the authenticated caller passed in by the
// transport. The store does not infer identity and never writes a slot
// other than the caller's own.
//
// A store may be sealed with a passphrase, in which case record rows are
// encrypted at rest in addition to the opaque ciphertext they carry.
package core
