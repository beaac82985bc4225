package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")

	keyLatest = []byte("latest")
)

// Store persists snapshots in a BoltDB file, keyed by big-endian
// version so a cursor walks them oldest first.
type Store struct {
	db *bolt.DB
}

// NewStore opens (and migrates) the BoltDB-backed snapshot store.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes the snapshot and advances the latest-version marker when
// the snapshot is newer.
func (s *Store) Save(snap *EconomySnapshot) error {
	encoded, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSnapshots).Put(versionKey(snap.Version), encoded); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get(keyLatest); raw != nil && binary.BigEndian.Uint64(raw) >= snap.Version {
			return nil
		}
		return meta.Put(keyLatest, versionKey(snap.Version))
	})
}

// Latest returns the newest stored snapshot, if any.
func (s *Store) Latest() (*EconomySnapshot, bool, error) {
	var snap *EconomySnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyLatest)
		if raw == nil {
			return nil
		}
		encoded := tx.Bucket(bucketSnapshots).Get(raw)
		if encoded == nil {
			return nil
		}
		snap = &EconomySnapshot{}
		return json.Unmarshal(encoded, snap)
	})
	if err != nil {
		return nil, false, err
	}
	return snap, snap != nil, nil
}

// ByVersion returns one stored snapshot by its version.
func (s *Store) ByVersion(version uint64) (*EconomySnapshot, bool, error) {
	var snap *EconomySnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		encoded := tx.Bucket(bucketSnapshots).Get(versionKey(version))
		if encoded == nil {
			return nil
		}
		snap = &EconomySnapshot{}
		return json.Unmarshal(encoded, snap)
	})
	if err != nil {
		return nil, false, err
	}
	return snap, snap != nil, nil
}

// Versions lists the stored snapshot versions, oldest first.
func (s *Store) Versions() ([]uint64, error) {
	var out []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

// Prune deletes the oldest snapshots beyond keep, returning how many
// were dropped.
func (s *Store) Prune(keep int) (int, error) {
	if keep <= 0 {
		keep = DefaultRetention
	}
	dropped := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		total := bucket.Stats().KeyN
		excess := total - keep
		if excess <= 0 {
			return nil
		}
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil && dropped < excess; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	return dropped, err
}

func versionKey(version uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], version)
	return key[:]
}
