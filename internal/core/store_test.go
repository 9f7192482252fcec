package core

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cipherstore/internal/account"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Init(filepath.Join(t.TempDir(), "test.cipherstore"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addr(b byte) account.Address {
	var a account.Address
	a[0] = 0xa0
	a[account.AddressSize-1] = b
	return a
}

func word(b byte) account.Word {
	var w account.Word
	copy(w[:], bytes.Repeat([]byte{b}, account.WordSize))
	return w
}

func bundle(fill byte, nonce uint64, key account.Address) Bundle {
	return Bundle{
		EncryptedAmount:    word(fill),
		EncryptedShares:    word(fill + 1),
		EncryptedRewards:   word(fill + 2),
		EncryptedStrategy:  word(fill + 3),
		EncryptedTimestamp: word(fill + 4),
		Nonce:              account.NewUint256(nonce),
		EncryptionKey:      key,
	}
}

func TestInitTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.cipherstore")
	s, err := Init(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Init(path, nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpenMissingStore(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRecordLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)
	k1, k2, k3 := addr(0x11), addr(0x12), addr(0x13)

	first := bundle(0x01, 1, k1)
	require.NoError(t, s.StoreEncryptedData(ctx, a, first))

	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, first.Record(a), got)
	assert.Equal(t, a, got.Owner)

	require.NoError(t, s.UpdateEncryptionKey(ctx, a, k2))
	got, err = s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	rotated := first.Record(a)
	rotated.EncryptionKey = k2
	assert.Equal(t, rotated, got, "only the key reference moves")

	second := bundle(0x21, 2, k3)
	require.NoError(t, s.StoreEncryptedData(ctx, a, second))
	got, err = s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, second.Record(a), got, "no stale field survives a full replace")
	assert.Equal(t, account.NewUint256(2), got.Nonce)
}

func TestAbsentAccountReadsZeroRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetEncryptedUserData(ctx, addr(9))
	require.NoError(t, err)
	assert.Equal(t, EncryptedRecord{}, got)
	assert.False(t, got.Exists())
}

func TestRepeatedReadsAreIdentical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)
	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x05, 5, addr(0x11))))

	first, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := s.GetEncryptedUserData(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	events, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "reads emit no events")
}

func TestWritesNeverTouchOtherAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, b := addr(1), addr(2)

	bRecord := bundle(0x40, 7, addr(0x22))
	require.NoError(t, s.StoreEncryptedData(ctx, b, bRecord))

	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 1, addr(0x11))))
	require.NoError(t, s.UpdateEncryptionKey(ctx, a, addr(0x12)))
	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x02, 2, addr(0x13))))

	got, err := s.GetEncryptedUserData(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, bRecord.Record(b), got)
}

func TestNonceIsStoredVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)

	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 10, addr(0x11))))
	// A lower nonce is accepted: ordering is not enforced by the store
	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 3, addr(0x11))))

	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, account.NewUint256(3), got.Nonce)
}

func TestUpdateKeyBeforeFirstWriteIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)

	err := s.UpdateEncryptionKey(ctx, a, addr(0x11))
	assert.ErrorIs(t, err, ErrNoRecord)

	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.False(t, got.Exists(), "rejected key update must not create a record")

	events, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestZeroCallerIsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.StoreEncryptedData(ctx, account.Address{}, bundle(0x01, 1, addr(0x11)))
	assert.ErrorIs(t, err, ErrMalformedInput)

	err = s.UpdateEncryptionKey(ctx, account.Address{}, addr(0x11))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize(addr(1), addr(1)))
	assert.ErrorIs(t, Authorize(addr(1), addr(2)), ErrAuthorizationViolation)
	assert.ErrorIs(t, Authorize(account.Address{}, account.Address{}), ErrMalformedInput)
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.StoreEncryptedData(ctx, addr(1), bundle(0x01, 1, addr(0x11)))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetEncryptedUserData(ctx, addr(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, b := addr(1), addr(2)

	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 1, addr(0x11))))
	require.NoError(t, s.UpdateEncryptionKey(ctx, a, addr(0x12)))
	require.NoError(t, s.StoreEncryptedData(ctx, b, bundle(0x02, 1, addr(0x11))))

	events, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Seq: 1, Kind: "DataStored", Account: a}, events[0])
	assert.Equal(t, Event{Seq: 2, Kind: "KeyUpdated", Account: a}, events[1])
	assert.Equal(t, Event{Seq: 3, Kind: "DataStored", Account: b}, events[2])

	tail, err := s.Events(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, events[2:], tail)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)

	ch, cancel := s.Subscribe(4)
	defer cancel()

	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 1, addr(0x11))))
	require.NoError(t, s.UpdateEncryptionKey(ctx, a, addr(0x12)))
	// Rejected writes publish nothing
	require.Error(t, s.UpdateEncryptionKey(ctx, addr(2), addr(0x12)))

	ev := <-ch
	assert.Equal(t, Event{Seq: 1, Kind: "DataStored", Account: a}, ev)
	ev = <-ch
	assert.Equal(t, Event{Seq: 2, Kind: "KeyUpdated", Account: a}, ev)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")
	cancel() // second cancel is a no-op
}

func TestSlowSubscriberDoesNotBlockWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ch, cancel := s.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.StoreEncryptedData(ctx, addr(1), bundle(0x01, uint64(i), addr(0x11))))
	}

	ev := <-ch
	assert.Equal(t, uint64(1), ev.Seq)

	events, err := s.Events(ctx, ev.Seq, 0)
	require.NoError(t, err)
	assert.Len(t, events, 4, "dropped live events remain in the log")
}

func TestConcurrentWritersKeepSlotsDisjoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				assert.NoError(t, s.StoreEncryptedData(ctx, addr(n), bundle(n, uint64(j), addr(0x10+n))))
			}
		}(byte(i))
	}
	wg.Wait()

	for i := 1; i <= 8; i++ {
		n := byte(i)
		got, err := s.GetEncryptedUserData(ctx, addr(n))
		require.NoError(t, err)
		assert.Equal(t, bundle(n, 4, addr(0x10+n)).Record(addr(n)), got)
	}

	events, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 40)

	records, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealed.cipherstore")
	password := []byte("correct horse")

	s, err := Init(path, password)
	require.NoError(t, err)
	assert.True(t, s.IsSealed())

	a := addr(1)
	want := bundle(0x01, 1, addr(0x11)).Record(a)
	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 1, addr(0x11))))
	require.NoError(t, s.Close())

	_, err = Open(path, nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = Open(path, []byte("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	s, err = Open(path, password)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rekey.cipherstore")

	s, err := Init(path, nil)
	require.NoError(t, err)
	a := addr(1)
	want := bundle(0x01, 1, addr(0x11)).Record(a)
	require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(0x01, 1, addr(0x11))))

	require.NoError(t, s.ChangePassword([]byte("first")))
	assert.True(t, s.IsSealed())
	require.NoError(t, s.ChangePassword([]byte("second")))
	require.NoError(t, s.Close())

	_, err = Open(path, []byte("first"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	s, err = Open(path, []byte("second"))
	require.NoError(t, err)
	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.ChangePassword(nil))
	assert.False(t, s.IsSealed())
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err = s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Records)
	assert.False(t, st.Sealed)

	require.NoError(t, s.StoreEncryptedData(ctx, addr(1), bundle(0x01, 1, addr(0x11))))
	require.NoError(t, s.StoreEncryptedData(ctx, addr(2), bundle(0x02, 1, addr(0x11))))
	require.NoError(t, s.UpdateEncryptionKey(ctx, addr(1), addr(0x12)))

	st, err = s.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, uint64(3), st.LastSeq)
	assert.Equal(t, s.Path(), st.Path)
}

func TestReadEventsWithoutHoldingTheStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.cipherstore")

	s, err := Init(path, []byte("sealed"))
	require.NoError(t, err)
	require.NoError(t, s.StoreEncryptedData(ctx, addr(1), bundle(0x01, 1, addr(0x11))))

	_, err = ReadEvents(ctx, path, 0, 0)
	assert.ErrorIs(t, err, ErrStoreBusy)
	require.NoError(t, s.Close())

	// No password needed and the file is released afterwards
	events, err := ReadEvents(ctx, path, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Seq: 1, Kind: "DataStored", Account: addr(1)}, events[0])

	s, err = Open(path, []byte("sealed"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateEncryptionKey(ctx, addr(1), addr(0x12)))
	require.NoError(t, s.Close())

	events, err = ReadEvents(ctx, path, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Seq)

	_, err = ReadEvents(ctx, filepath.Join(t.TempDir(), "missing"), 0, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestIsSealedDuringPasswordChange(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.IsSealed()
		}
	}()
	require.NoError(t, s.ChangePassword([]byte("first")))
	wg.Wait()
	assert.True(t, s.IsSealed())
}

func TestCompactKeepsRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addr(1)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.StoreEncryptedData(ctx, a, bundle(byte(i), uint64(i), addr(0x11))))
	}
	require.NoError(t, s.Compact())

	got, err := s.GetEncryptedUserData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, account.NewUint256(19), got.Nonce)

	id, err := s.GetOrCreateStoreID()
	require.NoError(t, err)
	again, err := s.GetStoreID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
