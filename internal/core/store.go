package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/storage"
)

const passwordCheckString = "cipherstore-password-check"

var (
	ErrNotInitialized         = errors.New("store not initialized")
	ErrAlreadyExists          = errors.New("store already exists")
	ErrWrongPassword          = errors.New("wrong password")
	ErrPasswordRequired       = errors.New("password required")
	ErrNoRecord               = errors.New("no record for account")
	ErrAuthorizationViolation = errors.New("authorization violation")
	ErrStoreBusy              = errors.New("store is locked by a writer")
	ErrMalformedInput         = account.ErrMalformedInput
)

// EncryptedRecord is the bundle stored for one account
type EncryptedRecord = storage.Record

// Event is a DataStored or KeyUpdated notification
type Event = storage.Event

// RecordService is the call surface shared by the local store and the
// remote client.
type RecordService interface {
	StoreEncryptedData(ctx context.Context, caller account.Address, b Bundle) error
	UpdateEncryptionKey(ctx context.Context, caller, newKey account.Address) error
	GetEncryptedUserData(ctx context.Context, addr account.Address) (EncryptedRecord, error)
	Events(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// Store holds one encrypted record per account. Writes are serialized;
// reads run concurrently on consistent snapshots.
type Store struct {
	mu  sync.Mutex
	db  *storage.Storage
	enc *crypto.Encryptor

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// Init creates a new store file at path. With a non-empty password every
// record row is sealed with a key derived from it.
func Init(path string, password []byte) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := newStore(db)
	if len(password) > 0 {
		if err := s.setupSealing(password); err != nil {
			db.Close()
			return nil, err
		}
	}

	slog.Info("store initialized", "path", path, "sealed", s.IsSealed())
	return s, nil
}

// Open opens an existing store. The password is ignored for unsealed
// stores and required for sealed ones.
func Open(path string, password []byte) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	initialized, err := db.IsInitialized()
	if err != nil || !initialized {
		db.Close()
		return nil, ErrNotInitialized
	}

	s := newStore(db)
	if err := s.unseal(password); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// StoreID reads the keyring identifier of the store at path without
// unsealing it.
func StoreID(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetStoreID()
}

// ReadEvents reads the event log of the store at path without holding it
// open. Events are never sealed, so no password is needed. While another
// process has the store open for writing it returns ErrStoreBusy.
func ReadEvents(ctx context.Context, path string, after uint64, limit int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.OpenReadOnly(path)
	if errors.Is(err, storage.ErrLocked) {
		return nil, ErrStoreBusy
	}
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var events []Event
	err = db.View(func(tx *storage.Tx) error {
		var err error
		events, err = tx.Events(after, limit)
		return err
	})
	return events, err
}

func newStore(db *storage.Storage) *Store {
	return &Store{
		db:   db,
		subs: make(map[int]chan Event),
	}
}

func (s *Store) setupSealing(password []byte) error {
	enc, params, err := newSealing(password)
	if err != nil {
		return err
	}
	if err := s.db.Reseal(enc, params); err != nil {
		enc.Destroy()
		return fmt.Errorf("failed to store sealing parameters: %w", err)
	}
	s.enc = enc
	return nil
}

// newSealing derives a fresh record key from password and the parameters
// needed to derive and verify it again
func newSealing(password []byte) (*crypto.Encryptor, *storage.SealParams, error) {
	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create KDF: %w", err)
	}

	enc, err := crypto.NewEncryptor(kdf.DeriveKey(password))
	if err != nil {
		return nil, nil, err
	}

	checksum := sha256.Sum256([]byte(passwordCheckString))
	checksumData, err := enc.Encrypt([]byte(hex.EncodeToString(checksum[:])))
	if err != nil {
		enc.Destroy()
		return nil, nil, fmt.Errorf("failed to encrypt checksum: %w", err)
	}

	return enc, &storage.SealParams{
		Salt:       kdf.Salt,
		Iterations: uint32(kdf.Iterations),
		Checksum:   checksumData,
	}, nil
}

// ChangePassword re-encrypts every record under a key derived from
// newPassword. An empty newPassword removes at-rest sealing.
func (s *Store) ChangePassword(newPassword []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(newPassword) == 0 {
		if err := s.db.Reseal(nil, nil); err != nil {
			return fmt.Errorf("failed to unseal records: %w", err)
		}
		if s.enc != nil {
			s.enc.Destroy()
			s.enc = nil
		}
		slog.Info("store unsealed", "path", s.db.Path())
		return nil
	}

	enc, params, err := newSealing(newPassword)
	if err != nil {
		return err
	}
	if err := s.db.Reseal(enc, params); err != nil {
		enc.Destroy()
		return fmt.Errorf("failed to reseal records: %w", err)
	}
	if s.enc != nil {
		s.enc.Destroy()
	}
	s.enc = enc
	slog.Info("store sealed", "path", s.db.Path())
	return nil
}

// Status describes a store without exposing its records
type Status struct {
	Path     string
	Sealed   bool
	Records  int
	LastSeq  uint64
	Modified time.Time
}

// Status reports the record count, event log position and seal state
func (s *Store) Status() (*Status, error) {
	st, err := s.db.Stats()
	if err != nil {
		return nil, err
	}
	return &Status{
		Path:     s.db.Path(),
		Sealed:   s.IsSealed(),
		Records:  st.Records,
		LastSeq:  st.LastSeq,
		Modified: st.Modified,
	}, nil
}

func (s *Store) unseal(password []byte) error {
	salt, err := s.db.GetSalt()
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return ErrPasswordRequired
	}

	iterations, err := s.db.GetIterations()
	if err != nil {
		return err
	}

	kdf := &crypto.KDF{Salt: salt, Iterations: int(iterations)}
	enc, err := crypto.NewEncryptor(kdf.DeriveKey(password))
	if err != nil {
		return err
	}

	checksumData, err := s.db.GetChecksum()
	if err != nil {
		enc.Destroy()
		return err
	}
	got, err := enc.Decrypt(checksumData)
	if err != nil {
		enc.Destroy()
		return ErrWrongPassword
	}
	want := sha256.Sum256([]byte(passwordCheckString))
	if !crypto.ConstantTimeCompare(got, []byte(hex.EncodeToString(want[:]))) {
		enc.Destroy()
		return ErrWrongPassword
	}

	s.enc = enc
	s.db.SetSealer(enc)
	return nil
}

// IsSealed reports whether record rows are encrypted at rest
func (s *Store) IsSealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc != nil
}

// Close releases the database and ends all subscriptions
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	if s.enc != nil {
		s.enc.Destroy()
	}
	return s.db.Close()
}

// Authorize checks that caller may mutate the record slot of target.
// Every mutation is keyed by its caller, so target must be caller.
func Authorize(caller, target account.Address) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: caller identity is the zero address", ErrMalformedInput)
	}
	if caller != target {
		return fmt.Errorf("%w: %s may not modify the record of %s", ErrAuthorizationViolation, caller, target)
	}
	return nil
}

// StoreEncryptedData creates or fully replaces the caller's record.
// The nonce is stored verbatim; ordering is the caller's concern.
func (s *Store) StoreEncryptedData(ctx context.Context, caller account.Address, b Bundle) error {
	return s.mutate(ctx, caller, caller, storage.DataStored, func(tx *storage.Tx) error {
		return tx.PutRecord(caller, b.Record(caller))
	})
}

// UpdateEncryptionKey moves the caller's key reference to newKey, leaving
// ciphertext and nonce untouched. Callers without a record get ErrNoRecord.
func (s *Store) UpdateEncryptionKey(ctx context.Context, caller, newKey account.Address) error {
	return s.mutate(ctx, caller, caller, storage.KeyUpdated, func(tx *storage.Tx) error {
		rec, found, err := tx.GetRecord(caller)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w %s", ErrNoRecord, caller)
		}
		rec.EncryptionKey = newKey
		return tx.PutRecord(caller, rec)
	})
}

// mutate applies fn to target's slot and appends the event in the same
// transaction, then notifies live subscribers.
func (s *Store) mutate(ctx context.Context, caller, target account.Address, kind storage.EventKind, fn func(tx *storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Authorize(caller, target); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ev Event
	err := s.db.Update(func(tx *storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		var err error
		ev, err = tx.AppendEvent(kind, target)
		return err
	})
	if err != nil {
		slog.Debug("mutation rejected", "kind", kind, "account", target, "error", err)
		return err
	}

	slog.Info("record changed", "kind", ev.Kind, "account", ev.Account, "seq", ev.Seq)
	s.publish(ev)
	return nil
}

// GetEncryptedUserData returns the record of addr. Accounts that never
// wrote yield the zero record, not an error.
func (s *Store) GetEncryptedUserData(ctx context.Context, addr account.Address) (EncryptedRecord, error) {
	var rec EncryptedRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	err := s.db.View(func(tx *storage.Tx) error {
		var err error
		rec, _, err = tx.GetRecord(addr)
		return err
	})
	if err != nil {
		return EncryptedRecord{}, err
	}

	slog.Debug("record read", "account", addr, "exists", rec.Exists())
	return rec, nil
}

// Records lists every stored record in address order
func (s *Store) Records(ctx context.Context) ([]EncryptedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []EncryptedRecord
	err := s.db.View(func(tx *storage.Tx) error {
		return tx.ForEachRecord(func(_ account.Address, rec EncryptedRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Events reads the notification log after the given sequence number
func (s *Store) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []Event
	err := s.db.View(func(tx *storage.Tx) error {
		var err error
		events, err = tx.Events(after, limit)
		return err
	})
	return events, err
}

// Compact rewrites the database file to reclaim unused space
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Compact()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.db.Path()
}

// GetStoreID returns the keyring identifier of this store, if any
func (s *Store) GetStoreID() (string, error) {
	return s.db.GetStoreID()
}

// GetOrCreateStoreID returns the keyring identifier, creating it on first use
func (s *Store) GetOrCreateStoreID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetOrCreateStoreID()
}

var _ RecordService = (*Store)(nil)
