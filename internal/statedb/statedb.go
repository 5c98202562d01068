// Package statedb is a small bbolt-backed key/value cache, grounded on
// katzenpost's go.mod dependency on go.etcd.io/bbolt for mailproxy's
// persistent spool. cmd/rexecd opens one when a state-db path is
// configured and hands it to server/fsservice, which keeps the handle but
// writes nothing to it; no client code uses this package.
package statedb

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kestrelsys/rexec/rerrors"
)

var rootBucket = []byte("rexec")

// DB wraps a single bbolt file with the narrow Get/Put/Delete/ForEach
// surface rexec's cache uses; it is not a general bbolt client.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if necessary) a bbolt file at path and ensures the
// root bucket exists.
func Open(path string) (*DB, error) {
	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, rerrors.Wrap(rerrors.Io, err)
	}
	err = b.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = b.Close()
		return nil, rerrors.Wrap(rerrors.Io, err)
	}
	return &DB{bolt: b}, nil
}

// Close releases the underlying bbolt file.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// Put stores value under key, overwriting any existing entry.
func (d *DB) Put(key string, value []byte) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put([]byte(key), value)
	})
	if err != nil {
		return rerrors.Wrap(rerrors.Io, err)
	}
	return nil
}

// Get returns the value stored under key, and whether it was present. The
// returned slice is a copy, safe to retain past the call (bbolt's own
// buffer is only valid within the read transaction).
func (d *DB) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := d.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, rerrors.Wrap(rerrors.Io, err)
	}
	return value, value != nil, nil
}

// Delete removes key, if present.
func (d *DB) Delete(key string) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete([]byte(key))
	})
	if err != nil {
		return rerrors.Wrap(rerrors.Io, err)
	}
	return nil
}

// ForEach calls fn for every stored key/value pair, in bbolt's key-sorted
// order. fn's slices are only valid for the duration of the call.
func (d *DB) ForEach(fn func(key string, value []byte) error) error {
	err := d.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
	if err != nil {
		return rerrors.Wrap(rerrors.Io, err)
	}
	return nil
}
