// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package inventory

import (
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// Inventory maps inventory hashes to the objects received under them.
type Inventory struct {
	db database.Db
}

// New returns an inventory that keeps its records in db.
func New(db database.Db) *Inventory {
	return &Inventory{db: db}
}

// Admit computes the inventory hash of obj and stores obj under it unless
// the hash is already known. The returned bool reports whether obj was
// stored. A duplicate is not an error: the hash is returned with false and
// the record admitted first is kept.
func (inv *Inventory) Admit(obj *wire.Object) (*wire.Hash, bool, error) {
	hash, err := obj.InventoryHash()
	if err != nil {
		return nil, false, err
	}

	err = inv.db.InsertObject(hash, obj)
	if err == database.ErrDuplicateObject {
		log.Tracef("Duplicate %s %s ignored", obj.Type, hash)
		return hash, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	log.Debugf("Admitted %s %s (height %d, %d bytes)", obj.Type, hash,
		obj.Height, obj.Length())
	return hash, true, nil
}

// Lookup returns the record stored under hash, or
// database.ErrNonexistentObject.
func (inv *Inventory) Lookup(hash *wire.Hash) (*wire.Object, error) {
	return inv.db.FetchObjectByHash(hash)
}

// MarkSent sets the sent flag of the record stored under hash.
func (inv *Inventory) MarkSent(hash *wire.Hash) error {
	return inv.db.MarkSent(hash)
}

// Exists returns whether a record is stored under hash. Database errors are
// logged and reported as absence.
func (inv *Inventory) Exists(hash *wire.Hash) bool {
	ok, err := inv.db.ExistsObject(hash)
	if err != nil {
		log.Errorf("Unable to look up %s: %v", hash, err)
		return false
	}
	return ok
}

// Count returns the number of records in the inventory.
func (inv *Inventory) Count() int {
	n, err := inv.db.ObjectCount()
	if err != nil {
		log.Errorf("Unable to count objects: %v", err)
		return 0
	}
	return n
}

// ForEach calls fn for every record in the inventory until fn returns an
// error.
func (inv *Inventory) ForEach(fn func(*wire.Hash, *wire.Object) error) error {
	return inv.db.ForEachObject(fn)
}

// Close syncs and closes the underlying database.
func (inv *Inventory) Close() error {
	return inv.db.Close()
}
