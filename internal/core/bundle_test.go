package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cipherstore/internal/account"
)

func validInput() BundleInput {
	return BundleInput{
		Amount:        "0x01",
		Shares:        "02",
		Rewards:       "0x" + strings.Repeat("03", 32),
		Strategy:      "abcdef",
		Timestamp:     "0x0",
		Nonce:         "123456",
		EncryptionKey: "0x00000000000000000000000000000000000000aa",
	}
}

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle(validInput())
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), b.EncryptedAmount[31])
	assert.Equal(t, byte(0x00), b.EncryptedAmount[0])
	assert.Equal(t, byte(0x03), b.EncryptedRewards[0])
	assert.Equal(t, account.Word{}, b.EncryptedTimestamp)
	assert.Equal(t, account.NewUint256(123456), b.Nonce)
	assert.Equal(t, byte(0xaa), b.EncryptionKey[19])
}

func TestParseBundleRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BundleInput)
		field  string
	}{
		{"oversized word", func(in *BundleInput) { in.Shares = strings.Repeat("f", 65) }, "shares"},
		{"non hex word", func(in *BundleInput) { in.Strategy = "xyz" }, "strategy"},
		{"negative nonce", func(in *BundleInput) { in.Nonce = "-5" }, "nonce"},
		{"empty nonce", func(in *BundleInput) { in.Nonce = "" }, "nonce"},
		{"short key", func(in *BundleInput) { in.EncryptionKey = "0x1234" }, "encryption key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := ParseBundle(in)
			require.ErrorIs(t, err, ErrMalformedInput)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDiffRecords(t *testing.T) {
	a := addr(1)
	current := bundle(0x01, 1, addr(0x11)).Record(a)

	assert.Empty(t, DiffRecords("a", current, current))

	proposed := current
	proposed.Nonce = account.NewUint256(2)
	out := DiffRecords("a", current, proposed)
	assert.Contains(t, out, "--- stored/a")
	assert.Contains(t, out, "+++ proposed/a")
	assert.Contains(t, out, "-nonce:              1")
	assert.Contains(t, out, "+nonce:              2")
	assert.NotContains(t, out, "-encryptedAmount")
}
