package crypto

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	kdf := &KDF{Salt: bytes.Repeat([]byte{1}, SaltSize), Iterations: 1000}
	key := kdf.DeriveKey([]byte("passphrase"))
	require.Len(t, key, KeySize)

	enc, err := NewEncryptor(key)
	require.NoError(t, err)

	plaintext := []byte("record row")
	ct1, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	ct2, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2, "nonces must differ")

	got, err := enc.Decrypt(ct1)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	ct1[len(ct1)-1] ^= 0xff
	_, err = enc.Decrypt(ct1)
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = enc.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestWrongKeyFails(t *testing.T) {
	kdf, err := NewKDF()
	require.NoError(t, err)
	kdf.Iterations = 1000

	enc1, err := NewEncryptor(kdf.DeriveKey([]byte("right")))
	require.NoError(t, err)
	enc2, err := NewEncryptor(kdf.DeriveKey([]byte("wrong")))
	require.NoError(t, err)

	ct, err := enc1.Encrypt([]byte("data"))
	require.NoError(t, err)
	_, err = enc2.Decrypt(ct)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestIdentitySignVerify(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	msg := []byte("POST\n/v1/records\n{}")
	sig := id.Sign(msg)

	addr, err := Verify(id.PublicKey(), msg, sig)
	require.NoError(t, err)
	assert.Equal(t, id.Address(), addr)

	_, err = Verify(id.PublicKey(), []byte("tampered"), sig)
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = Verify(id.PublicKey()[:5], msg, sig)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestIdentitySaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity")

	id, err := GenerateIdentity()
	require.NoError(t, err)
	require.NoError(t, id.Save(path))

	loaded, err := LoadIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, id.Address(), loaded.Address())

	_, err = IdentityFromSeed([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
