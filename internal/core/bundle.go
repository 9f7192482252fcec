package core

import (
	"fmt"

	"github.com/illarion/cipherstore/internal/account"
)

// Bundle is what a caller writes: five ciphertext words, a nonce and the
// reference of the key that produced them.
type Bundle struct {
	EncryptedAmount    account.Word    `json:"encryptedAmount"`
	EncryptedShares    account.Word    `json:"encryptedShares"`
	EncryptedRewards   account.Word    `json:"encryptedRewards"`
	EncryptedStrategy  account.Word    `json:"encryptedStrategy"`
	EncryptedTimestamp account.Word    `json:"encryptedTimestamp"`
	Nonce              account.Uint256 `json:"nonce"`
	EncryptionKey      account.Address `json:"encryptionKey"`
}

// BundleInput holds the text form of a bundle as entered by a user
type BundleInput struct {
	Amount, Shares, Rewards, Strategy, Timestamp string
	Nonce                                        string
	EncryptionKey                                string
}

// ParseBundle converts text input into a Bundle. Hex words shorter than
// 32 bytes are left-padded; anything that does not fit is rejected.
func ParseBundle(in BundleInput) (Bundle, error) {
	var b Bundle
	words := []struct {
		name string
		src  string
		dst  *account.Word
	}{
		{"amount", in.Amount, &b.EncryptedAmount},
		{"shares", in.Shares, &b.EncryptedShares},
		{"rewards", in.Rewards, &b.EncryptedRewards},
		{"strategy", in.Strategy, &b.EncryptedStrategy},
		{"timestamp", in.Timestamp, &b.EncryptedTimestamp},
	}
	for _, w := range words {
		parsed, err := account.ParseWord(w.src)
		if err != nil {
			return Bundle{}, fmt.Errorf("%s: %w", w.name, err)
		}
		*w.dst = parsed
	}

	nonce, err := account.ParseUint256(in.Nonce)
	if err != nil {
		return Bundle{}, fmt.Errorf("nonce: %w", err)
	}
	b.Nonce = nonce

	key, err := account.ParseAddress(in.EncryptionKey)
	if err != nil {
		return Bundle{}, fmt.Errorf("encryption key: %w", err)
	}
	b.EncryptionKey = key

	return b, nil
}

// Record returns the row StoreEncryptedData writes for owner
func (b Bundle) Record(owner account.Address) EncryptedRecord {
	return EncryptedRecord{
		Owner:              owner,
		EncryptedAmount:    b.EncryptedAmount,
		EncryptedShares:    b.EncryptedShares,
		EncryptedRewards:   b.EncryptedRewards,
		EncryptedStrategy:  b.EncryptedStrategy,
		EncryptedTimestamp: b.EncryptedTimestamp,
		Nonce:              b.Nonce,
		EncryptionKey:      b.EncryptionKey,
	}
}
