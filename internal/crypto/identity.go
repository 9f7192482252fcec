package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/illarion/cipherstore/internal/account"
)

var ErrInvalidIdentity = errors.New("invalid identity key")

// Identity is an Ed25519 signing key whose public half names an account
type Identity struct {
	private ed25519.PrivateKey
}

// GenerateIdentity returns a new random identity
func GenerateIdentity() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	return &Identity{private: priv}, nil
}

// IdentityFromSeed builds an identity from a 32-byte Ed25519 seed
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidIdentity, ed25519.SeedSize)
	}
	return &Identity{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// LoadIdentity reads a hex-encoded seed from path
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	defer ClearBytes(data)

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	defer ClearBytes(seed)
	return IdentityFromSeed(seed)
}

// Save writes the identity seed to path, readable by the owner only
func (id *Identity) Save(path string) error {
	seed := hex.EncodeToString(id.private.Seed())
	return os.WriteFile(path, []byte(seed+"\n"), 0600)
}

// PublicKey returns the verification key
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.private.Public().(ed25519.PublicKey)
}

// Address returns the account this identity writes as
func (id *Identity) Address() account.Address {
	return account.AddressFromPublicKey(id.PublicKey())
}

// Sign signs msg
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.private, msg)
}

// Verify checks sig over msg and returns the signer's account
func Verify(pub ed25519.PublicKey, msg, sig []byte) (account.Address, error) {
	if len(pub) != ed25519.PublicKeySize {
		return account.Address{}, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidIdentity, ed25519.PublicKeySize)
	}
	if !ed25519.Verify(pub, msg, sig) {
		return account.Address{}, ErrAuthFailed
	}
	return account.AddressFromPublicKey(pub), nil
}
