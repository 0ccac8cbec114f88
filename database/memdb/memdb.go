// Originally derived from: btcsuite/btcd/database/memdb/memdb.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memdb

import (
	"sync"

	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// MemDb is a concrete implementation of the database.Db interface which
// provides a memory-only database. Since it is memory-only, it is obviously not
// persistent.
//
// Objects are held by pointer: the object passed to InsertObject is the one
// later returned by FetchObjectByHash, so the database owns it after insertion.
type MemDb struct {
	// Embed a mutex for safe concurrent access.
	sync.RWMutex

	// objectsByHash keeps track of objects by their inventory hash.
	objectsByHash map[wire.Hash]*wire.Object

	// closed indicates whether or not the database has been closed and is
	// therefore invalidated.
	closed bool
}

// Close cleanly shuts down database. This is part of the database.Db interface
// implementation.
//
// All data is purged upon close with this implementation since it is a
// memory-only database.
func (db *MemDb) Close() error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return database.ErrDbClosed
	}

	db.objectsByHash = nil
	db.closed = true
	return nil
}

// ExistsObject returns whether or not an object with the given inventory hash
// exists in the database. This is part of the database.Db interface
// implementation.
func (db *MemDb) ExistsObject(hash *wire.Hash) (bool, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return false, database.ErrDbClosed
	}

	_, exists := db.objectsByHash[*hash]
	return exists, nil
}

// No locks here, meant to be used inside public facing functions.
func (db *MemDb) fetchObjectByHash(hash *wire.Hash) (*wire.Object, error) {
	if object, exists := db.objectsByHash[*hash]; exists {
		return object, nil
	}

	return nil, database.ErrNonexistentObject
}

// FetchObjectByHash returns the stored object with the given inventory hash.
// This is part of the database.Db interface implementation.
func (db *MemDb) FetchObjectByHash(hash *wire.Hash) (*wire.Object, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return nil, database.ErrDbClosed
	}

	return db.fetchObjectByHash(hash)
}

// ForEachObject calls fn for every object in the database. This is part of
// the database.Db interface implementation.
func (db *MemDb) ForEachObject(fn func(*wire.Hash, *wire.Object) error) error {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return database.ErrDbClosed
	}

	for hash, obj := range db.objectsByHash {
		hash := hash
		if err := fn(&hash, obj); err != nil {
			return err
		}
	}
	return nil
}

// InsertObject inserts an object into the database under the given inventory
// hash. This is part of the database.Db interface implementation.
func (db *MemDb) InsertObject(hash *wire.Hash, obj *wire.Object) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return database.ErrDbClosed
	}

	if _, ok := db.objectsByHash[*hash]; ok {
		return database.ErrDuplicateObject
	}

	db.objectsByHash[*hash] = obj
	return nil
}

// MarkSent sets the sent flag on the object with the given inventory hash.
// This is part of the database.Db interface implementation.
func (db *MemDb) MarkSent(hash *wire.Hash) error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return database.ErrDbClosed
	}

	obj, err := db.fetchObjectByHash(hash)
	if err != nil {
		return err
	}
	obj.Sent = true
	return nil
}

// ObjectCount returns the number of objects in the database. This is part of
// the database.Db interface implementation.
func (db *MemDb) ObjectCount() (int, error) {
	db.RLock()
	defer db.RUnlock()

	if db.closed {
		return 0, database.ErrDbClosed
	}

	return len(db.objectsByHash), nil
}

// Sync verifies that the database is coherent on disk, and no outstanding
// transactions are in flight. This is part of the database.Db interface
// implementation.
//
// This implementation does not write any data to disk, so this function only
// grabs a lock to ensure it doesn't return until other operations are complete.
func (db *MemDb) Sync() error {
	db.Lock()
	defer db.Unlock()

	if db.closed {
		return database.ErrDbClosed
	}

	// There is nothing extra to do to sync the memory database. However,
	// the lock is still grabbed to ensure the function does not return
	// until other operations are complete.
	return nil
}

// newMemDb returns a new memory-only database ready for object insertion.
func newMemDb() *MemDb {
	db := MemDb{
		objectsByHash: make(map[wire.Hash]*wire.Object),
	}
	return &db
}
