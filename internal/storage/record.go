package storage

import (
	"fmt"

	"github.com/illarion/cipherstore/internal/account"
)

// RecordSize is the encoded size of a record row:
// owner | amount | shares | rewards | strategy | timestamp | nonce | key
const RecordSize = account.AddressSize + 6*account.WordSize + account.AddressSize

// Record is one account's encrypted bundle
type Record struct {
	Owner              account.Address `json:"owner"`
	EncryptedAmount    account.Word    `json:"encryptedAmount"`
	EncryptedShares    account.Word    `json:"encryptedShares"`
	EncryptedRewards   account.Word    `json:"encryptedRewards"`
	EncryptedStrategy  account.Word    `json:"encryptedStrategy"`
	EncryptedTimestamp account.Word    `json:"encryptedTimestamp"`
	Nonce              account.Uint256 `json:"nonce"`
	EncryptionKey      account.Address `json:"encryptionKey"`
}

// Exists reports whether r holds a written record. The zero value is
// what reads return for accounts that never wrote.
func (r Record) Exists() bool {
	return !r.Owner.IsZero()
}

// MarshalBinary encodes the record in its fixed-width row layout
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, r.Owner[:]...)
	for _, w := range r.words() {
		buf = append(buf, w[:]...)
	}
	buf = append(buf, r.Nonce[:]...)
	buf = append(buf, r.EncryptionKey[:]...)
	return buf, nil
}

// UnmarshalBinary decodes a fixed-width row
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("record row has %d bytes, want %d", len(data), RecordSize)
	}

	off := copy(r.Owner[:], data)
	for _, w := range []*account.Word{
		&r.EncryptedAmount,
		&r.EncryptedShares,
		&r.EncryptedRewards,
		&r.EncryptedStrategy,
		&r.EncryptedTimestamp,
	} {
		off += copy(w[:], data[off:])
	}
	off += copy(r.Nonce[:], data[off:])
	copy(r.EncryptionKey[:], data[off:])
	return nil
}

func (r Record) words() []account.Word {
	return []account.Word{
		r.EncryptedAmount,
		r.EncryptedShares,
		r.EncryptedRewards,
		r.EncryptedStrategy,
		r.EncryptedTimestamp,
	}
}
