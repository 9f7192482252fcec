package storage

import (
	"github.com/illarion/cipherstore/internal/account"
)

// EventKind names a state change in the event log
type EventKind string

const (
	DataStored EventKind = "DataStored"
	KeyUpdated EventKind = "KeyUpdated"
)

// Event is one entry of the append-only notification log. It carries only
// the account; observers re-read the record to see what changed.
type Event struct {
	Seq     uint64          `cbor:"1,keyasint" json:"seq"`
	Kind    EventKind       `cbor:"2,keyasint" json:"kind"`
	Account account.Address `cbor:"3,keyasint" json:"account"`
}
