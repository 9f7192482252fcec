package storage

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/cipherstore/internal/account"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // KDF params, password check, timestamps - unencrypted
	RecordsBucket = []byte("records") // One row per account, sealed when a passphrase is set
	EventsBucket  = []byte("events")  // Append-only DataStored/KeyUpdated log
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigIters    = []byte("iterations")
	ConfigStoreID  = []byte("store_id")
	ConfigChecksum = []byte("checksum")
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNotFound       = errors.New("not found")
	ErrLocked         = errors.New("database is locked by another process")
)

// Sealer encrypts record rows at rest
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Storage provides BBolt-based storage for the record store
type Storage struct {
	db     *bolt.DB
	sealer Sealer
}

// Open opens or creates a record store database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// OpenReadOnly opens an existing database with a shared lock, so several
// readers can poll it between writes. Returns ErrLocked while a writer
// holds the file.
func OpenReadOnly(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// SetSealer makes all subsequent record reads and writes go through sealer.
// A nil sealer stores rows in the clear.
func (s *Storage) SetSealer(sealer Sealer) {
	s.sealer = sealer
}

// Initialize creates the bucket structure for a new store
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, RecordsBucket, EventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// GetSalt retrieves the KDF salt. Returns ErrNotFound for unsealed stores.
func (s *Storage) GetSalt() ([]byte, error) {
	return s.getConfig(ConfigSalt)
}

// GetIterations retrieves the KDF iterations
func (s *Storage) GetIterations() (uint32, error) {
	iters, err := s.getConfig(ConfigIters)
	if err != nil {
		return 0, err
	}
	if len(iters) != 4 {
		return 0, fmt.Errorf("iterations: invalid length %d", len(iters))
	}
	return binary.BigEndian.Uint32(iters), nil
}

// GetChecksum retrieves the encrypted password check value
func (s *Storage) GetChecksum() ([]byte, error) {
	return s.getConfig(ConfigChecksum)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	data, err := s.getConfig(ConfigModified)
	if err != nil {
		return modified, err
	}
	return modified, modified.UnmarshalBinary(data)
}

// GetStoreID retrieves the store ID from config bucket
func (s *Storage) GetStoreID() (string, error) {
	data, err := s.getConfig(ConfigStoreID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetOrCreateStoreID retrieves existing store ID or generates a new one
func (s *Storage) GetOrCreateStoreID() (string, error) {
	storeID, err := s.GetStoreID()
	if err == nil {
		return storeID, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate store ID: %w", err)
	}
	storeID = hex.EncodeToString(b)

	if err := s.putConfig(ConfigStoreID, []byte(storeID)); err != nil {
		return "", err
	}
	return storeID, nil
}

func (s *Storage) putConfig(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config: %w", ErrBucketNotFound)
		}
		return config.Put(key, value)
	})
}

func (s *Storage) getConfig(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config: %w", ErrBucketNotFound)
		}
		value = config.Get(key)
		if value == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		// Make a copy since the slice is only valid during the transaction
		value = append([]byte(nil), value...)
		return nil
	})
	return value, err
}

// Tx is a storage transaction over the records and events buckets
type Tx struct {
	tx      *bolt.Tx
	sealer  Sealer
	records *bolt.Bucket
	events  *bolt.Bucket
}

// Update runs fn in a read-write transaction. If fn returns an error the
// transaction is rolled back and nothing fn wrote becomes visible.
func (s *Storage) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		tx, err := s.wrap(btx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		modified, _ := time.Now().MarshalBinary()
		return btx.Bucket(ConfigBucket).Put(ConfigModified, modified)
	})
}

// View runs fn in a read-only transaction
func (s *Storage) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		tx, err := s.wrap(btx)
		if err != nil {
			return err
		}
		return fn(tx)
	})
}

func (s *Storage) wrap(btx *bolt.Tx) (*Tx, error) {
	tx := &Tx{
		tx:      btx,
		sealer:  s.sealer,
		records: btx.Bucket(RecordsBucket),
		events:  btx.Bucket(EventsBucket),
	}
	if tx.records == nil {
		return nil, fmt.Errorf("records: %w", ErrBucketNotFound)
	}
	if tx.events == nil {
		return nil, fmt.Errorf("events: %w", ErrBucketNotFound)
	}
	if btx.Bucket(ConfigBucket) == nil {
		return nil, fmt.Errorf("config: %w", ErrBucketNotFound)
	}
	return tx, nil
}

// GetRecord returns the record stored for addr and whether one exists
func (tx *Tx) GetRecord(addr account.Address) (Record, bool, error) {
	var rec Record
	data := tx.records.Get(addr[:])
	if data == nil {
		return rec, false, nil
	}

	if tx.sealer != nil {
		plain, err := tx.sealer.Decrypt(data)
		if err != nil {
			return rec, false, fmt.Errorf("failed to unseal record %s: %w", addr, err)
		}
		data = plain
	}

	if err := rec.UnmarshalBinary(data); err != nil {
		return rec, false, fmt.Errorf("record %s: %w", addr, err)
	}
	return rec, true, nil
}

// PutRecord writes rec under addr, replacing any previous row
func (tx *Tx) PutRecord(addr account.Address, rec Record) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}

	if tx.sealer != nil {
		data, err = tx.sealer.Encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to seal record %s: %w", addr, err)
		}
	}
	return tx.records.Put(addr[:], data)
}

// ForEachRecord calls fn for every stored record in address order
func (tx *Tx) ForEachRecord(fn func(addr account.Address, rec Record) error) error {
	return tx.records.ForEach(func(k, _ []byte) error {
		var addr account.Address
		if len(k) != account.AddressSize {
			return fmt.Errorf("record key has %d bytes", len(k))
		}
		copy(addr[:], k)

		rec, _, err := tx.GetRecord(addr)
		if err != nil {
			return err
		}
		return fn(addr, rec)
	})
}

// AppendEvent adds an event to the log, assigning its sequence number
func (tx *Tx) AppendEvent(kind EventKind, addr account.Address) (Event, error) {
	seq, err := tx.events.NextSequence()
	if err != nil {
		return Event{}, fmt.Errorf("failed to allocate event sequence: %w", err)
	}

	ev := Event{Seq: seq, Kind: kind, Account: addr}
	data, err := marshalEvent(ev)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode event: %w", err)
	}
	if err := tx.events.Put(seqKey(seq), data); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Events returns up to limit events with sequence numbers greater than
// after. A limit of zero or less returns all remaining events.
func (tx *Tx) Events(after uint64, limit int) ([]Event, error) {
	if after == math.MaxUint64 {
		return nil, nil
	}

	var events []Event
	c := tx.events.Cursor()
	for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
		ev, err := unmarshalEvent(v)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", binary.BigEndian.Uint64(k), err)
		}
		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Compact creates a compacted copy of the database, removing unused space.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets, keeping bucket sequences so event numbering continues
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := dstBucket.SetSequence(srcBucket.Sequence()); err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}

// SealParams is the KDF and password check material persisted for a sealed store
type SealParams struct {
	Salt       []byte
	Iterations uint32
	Checksum   []byte
}

func (p *SealParams) put(config *bolt.Bucket) error {
	iters := make([]byte, 4)
	binary.BigEndian.PutUint32(iters, p.Iterations)
	if err := config.Put(ConfigSalt, p.Salt); err != nil {
		return err
	}
	if err := config.Put(ConfigIters, iters); err != nil {
		return err
	}
	return config.Put(ConfigChecksum, p.Checksum)
}

// Reseal rewrites every record row under next in a single transaction and
// replaces the stored sealing parameters. A nil next leaves rows in the
// clear and removes the parameters.
func (s *Storage) Reseal(next Sealer, params *SealParams) error {
	err := s.db.Update(func(btx *bolt.Tx) error {
		tx, err := s.wrap(btx)
		if err != nil {
			return err
		}

		rows := make(map[account.Address]Record)
		if err := tx.ForEachRecord(func(addr account.Address, rec Record) error {
			rows[addr] = rec
			return nil
		}); err != nil {
			return err
		}

		tx.sealer = next
		for addr, rec := range rows {
			if err := tx.PutRecord(addr, rec); err != nil {
				return err
			}
		}

		config := btx.Bucket(ConfigBucket)
		if params == nil {
			for _, key := range [][]byte{ConfigSalt, ConfigIters, ConfigChecksum} {
				if err := config.Delete(key); err != nil {
					return err
				}
			}
		} else if err := params.put(config); err != nil {
			return err
		}

		modified, _ := time.Now().MarshalBinary()
		return config.Put(ConfigModified, modified)
	})
	if err != nil {
		return err
	}

	s.sealer = next
	return nil
}

// Stats summarizes the contents of the store
type Stats struct {
	Records  int
	LastSeq  uint64
	Modified time.Time
}

// Stats counts records and reports the last assigned event sequence
func (s *Storage) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(btx *bolt.Tx) error {
		records := btx.Bucket(RecordsBucket)
		events := btx.Bucket(EventsBucket)
		if records == nil || events == nil {
			return ErrBucketNotFound
		}
		st.Records = records.Stats().KeyN
		st.LastSeq = events.Sequence()
		return nil
	})
	if err != nil {
		return st, err
	}

	st.Modified, err = s.GetModified()
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	return st, err
}
