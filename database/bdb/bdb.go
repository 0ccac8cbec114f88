// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bdb

import (
	"github.com/boltdb/bolt"
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// Various buckets and keys used for the database.
var (
	// Inventory hash (32 bytes) -> Object data
	objectsBucket = []byte("objectsByHash")

	// miscBucket is used for storing misc data like database version.
	miscBucket = []byte("misc")
	versionKey = []byte("version")
)

// BoltDB is an implementation of database.Database interface with BoltDB
// as a backend store.
type BoltDB struct {
	*bolt.DB
}

// Close closes the underlying bolt database. This is part of the database.Db
// interface implementation.
func (db *BoltDB) Close() error {
	err := db.DB.Close()
	if err == bolt.ErrDatabaseNotOpen {
		return database.ErrDbClosed
	}
	return err
}

// view runs fn in a read-only transaction, translating errors from a closed
// database.
func (db *BoltDB) view(fn func(*bolt.Tx) error) error {
	err := db.View(fn)
	if err == bolt.ErrDatabaseNotOpen {
		return database.ErrDbClosed
	}
	return err
}

// update runs fn in a read-write transaction, translating errors from a
// closed database.
func (db *BoltDB) update(fn func(*bolt.Tx) error) error {
	err := db.Update(fn)
	if err == bolt.ErrDatabaseNotOpen {
		return database.ErrDbClosed
	}
	return err
}

// ExistsObject returns whether or not an object with the given inventory
// hash exists in the database.
func (db *BoltDB) ExistsObject(hash *wire.Hash) (bool, error) {
	var exists bool
	err := db.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(objectsBucket).Get(hash[:]) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// objectByHash is a helper method for returning a *wire.Object with the
// given hash.
func (db *BoltDB) objectByHash(tx *bolt.Tx, hash []byte) (*wire.Object, error) {
	b := tx.Bucket(objectsBucket).Get(hash)
	if b == nil {
		return nil, database.ErrNonexistentObject
	}

	obj, err := wire.DecodeObject(b)
	if err != nil {
		log.Criticalf("Decoding object with hash %x failed: %v", hash, err)
		return nil, err
	}
	return obj, nil
}

// FetchObjectByHash returns the object stored under hash. Every call decodes
// a fresh copy; changes to it are not written back.
func (db *BoltDB) FetchObjectByHash(hash *wire.Hash) (*wire.Object, error) {
	var obj *wire.Object

	err := db.view(func(tx *bolt.Tx) error {
		var err error
		obj, err = db.objectByHash(tx, hash[:])
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// ForEachObject calls fn for every object in the database.
func (db *BoltDB) ForEachObject(fn func(*wire.Hash, *wire.Object) error) error {
	return db.view(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).ForEach(func(k, v []byte) error {
			hash, err := wire.NewHash(k)
			if err != nil {
				return err
			}
			obj, err := wire.DecodeObject(v)
			if err != nil {
				log.Criticalf("Decoding object with hash %v failed: %v",
					hash, err)
				return err
			}
			return fn(hash, obj)
		})
	})
}

// InsertObject inserts the given object into the database under hash.
func (db *BoltDB) InsertObject(hash *wire.Hash, obj *wire.Object) error {
	b := obj.Bytes()

	return db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectsBucket)

		// Check if we already have the object.
		if bucket.Get(hash[:]) != nil {
			return database.ErrDuplicateObject
		}

		return bucket.Put(hash[:], b)
	})
}

// MarkSent sets the sent flag of the object stored under hash.
func (db *BoltDB) MarkSent(hash *wire.Hash) error {
	return db.update(func(tx *bolt.Tx) error {
		obj, err := db.objectByHash(tx, hash[:])
		if err != nil {
			return err
		}
		if obj.Sent {
			return nil
		}
		obj.Sent = true
		return tx.Bucket(objectsBucket).Put(hash[:], obj.Bytes())
	})
}

// ObjectCount returns the number of objects in the database.
func (db *BoltDB) ObjectCount() (int, error) {
	var count int
	err := db.view(func(tx *bolt.Tx) error {
		count = tx.Bucket(objectsBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Sync flushes the database file to disk.
func (db *BoltDB) Sync() error {
	err := db.DB.Sync()
	if err == bolt.ErrDatabaseNotOpen {
		return database.ErrDbClosed
	}
	return err
}
