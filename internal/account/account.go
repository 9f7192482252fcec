package account

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	AddressSize = 20 // Account identifier size in bytes
	WordSize    = 32 // Ciphertext word size in bytes
)

var ErrMalformedInput = errors.New("malformed input")

// Address identifies an account or an encryption key reference
type Address [AddressSize]byte

// ParseAddress parses a 0x-prefixed (or bare) 40 digit hex address
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressSize*2 {
		return a, fmt.Errorf("%w: address must be %d hex digits, got %d", ErrMalformedInput, AddressSize*2, len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("%w: address: %v", ErrMalformedInput, err)
	}
	return a, nil
}

// AddressFromPublicKey derives the account of an Ed25519 signer: the last
// 20 bytes of Keccak-256 over the public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)

	var a Address
	copy(a[:], sum[len(sum)-AddressSize:])
	return a
}

// IsZero reports whether a is the zero address
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Word is a fixed-width opaque ciphertext blob
type Word [WordSize]byte

// ParseWord decodes hex into a Word, left-padding short input with zeros.
// Input longer than 64 hex digits does not fit and is rejected.
func ParseWord(s string) (Word, error) {
	var w Word
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) > WordSize*2 {
		return w, fmt.Errorf("%w: word exceeds %d bytes", ErrMalformedInput, WordSize)
	}
	raw = strings.Repeat("0", WordSize*2-len(raw)) + raw
	if _, err := hex.Decode(w[:], []byte(raw)); err != nil {
		return w, fmt.Errorf("%w: word: %v", ErrMalformedInput, err)
	}
	return w, nil
}

// WordFromBytes copies b into a Word. b must be exactly 32 bytes.
func WordFromBytes(b []byte) (Word, error) {
	var w Word
	if len(b) != WordSize {
		return w, fmt.Errorf("%w: word must be %d bytes, got %d", ErrMalformedInput, WordSize, len(b))
	}
	copy(w[:], b)
	return w, nil
}

func (w Word) String() string {
	return "0x" + hex.EncodeToString(w[:])
}

func (w Word) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Word) UnmarshalText(text []byte) error {
	parsed, err := ParseWord(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Uint256 is an unsigned 256-bit integer in big-endian byte order
type Uint256 [32]byte

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NewUint256 returns v as a Uint256
func NewUint256(v uint64) Uint256 {
	var u Uint256
	new(big.Int).SetUint64(v).FillBytes(u[:])
	return u
}

// Uint256FromBig converts b, rejecting negative values and values above 2^256-1
func Uint256FromBig(b *big.Int) (Uint256, error) {
	var u Uint256
	if b == nil || b.Sign() < 0 || b.Cmp(maxUint256) > 0 {
		return u, fmt.Errorf("%w: value out of uint256 range", ErrMalformedInput)
	}
	b.FillBytes(u[:])
	return u, nil
}

// ParseUint256 parses a decimal or 0x-prefixed hex integer
func ParseUint256(s string) (Uint256, error) {
	s = strings.TrimSpace(s)
	b, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return Uint256{}, fmt.Errorf("%w: invalid integer %q", ErrMalformedInput, s)
	}
	return Uint256FromBig(b)
}

// Big returns u as a big.Int
func (u Uint256) Big() *big.Int {
	return new(big.Int).SetBytes(u[:])
}

func (u Uint256) String() string {
	return u.Big().String()
}

func (u Uint256) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Uint256) UnmarshalText(text []byte) error {
	parsed, err := ParseUint256(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
