// Package transport serves the record store over HTTP and provides the
// matching client.
//
// Endpoints:
//   - POST /v1/records          store the caller's bundle
//   - POST /v1/records/key      rotate the caller's key reference
//   - GET  /v1/records/{addr}   read any account's record
//   - GET  /v1/events           read the DataStored/KeyUpdated log; with
//     wait=<duration> an empty read is held until the next event
//
// POST requests carry the caller's Ed25519 public key, a Unix-nanosecond
// timestamp and a signature over "METHOD\nPATH\nTIMESTAMP\n" followed by
// the body. Timestamps must be within MaxClockSkew of server time and
// strictly increase per caller, so a captured request cannot be replayed.
// The caller address is derived from the verified key and handed to the
// store; request bodies never choose the slot being written.
package transport
