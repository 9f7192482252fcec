// Package storage provides the BBolt database interface for cipherstore.
//
// Database structure uses three buckets:
//   - config: KDF parameters (salt, iterations), password check, timestamps
//   - records: One fixed-width row per account, keyed by the 20-byte address
//   - events: DataStored/KeyUpdated log keyed by big-endian sequence number
//
// Record rows are optionally sealed with a Sealer before they are written.
// A record change and its event are always written in one transaction, so
// observers never see an event without the state it announces.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
