package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt implements [Store] in a local bbolt file for single-node deployments.
//
// Each namespace is a bucket; values are prefixed with their expiry as big-endian unix nanoseconds.
// bbolt serializes write transactions, so Take is exactly-once within the owning process.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens or creates the store file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, ns := range []string{NamespacePKCE, NamespaceSession} {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Bolt{db: db, now: time.Now}, nil
}

func (s *Bolt) Put(_ context.Context, ns, key, value string, ttl time.Duration) error {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(s.now().Add(ttl).UnixNano()))
	copy(buf[8:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), buf)
	})
}

func (s *Bolt) Take(_ context.Context, ns, key string) (string, error) {
	var (
		value string
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		value, found = s.decode(raw)
		// Expired entries are dropped too.
		return b.Delete([]byte(key))
	})
	if err != nil {
		return "", fmt.Errorf("failed to take %s: %w", ns, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *Bolt) Get(_ context.Context, ns, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return ErrNotFound
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		v, live := s.decode(raw)
		if !live {
			return ErrNotFound
		}
		value = v
		return nil
	})
	return value, err
}

func (s *Bolt) Delete(_ context.Context, ns, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Sweep removes expired entries from every bucket and reports how many were dropped.
func (s *Bolt) Sweep(_ context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				if _, live := s.decode(v); !live {
					expired = append(expired, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(expired)
			return nil
		})
	})
	return removed, err
}

func (s *Bolt) Ping(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

func (s *Bolt) decode(raw []byte) (string, bool) {
	if len(raw) < 8 {
		return "", false
	}
	expires := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8])))
	return string(raw[8:]), s.now().Before(expires)
}
