// Originally derived from: btcsuite/btcd/database/db.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"errors"

	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// Errors that the various database functions may return.
var (
	ErrDbClosed          = errors.New("database is closed")
	ErrDuplicateObject   = errors.New("duplicate insert attempted")
	ErrDbExists          = errors.New("database already exists")
	ErrDbDoesNotExist    = errors.New("non-existent database")
	ErrDbUnknownType     = errors.New("non-existent database type")
	ErrNotImplemented    = errors.New("method has not yet been implemented")
	ErrNonexistentObject = errors.New("object doesn't exist in database")
)

// Db defines a generic interface that is used to request and insert data into
// the database. This interface is intended to be agnostic to actual mechanism
// used for backend data storage. The AddDBDriver function can be used to add a
// new backend data storage method.
//
// Objects are keyed by their inventory hash and are never removed once
// inserted.
type Db interface {
	// Close cleanly shuts down the database and syncs all data.
	Close() error

	// ExistsObject returns whether or not an object with the given inventory
	// hash exists in the database.
	ExistsObject(*wire.Hash) (bool, error)

	// FetchObjectByHash returns the object stored under the given inventory
	// hash, or ErrNonexistentObject.
	FetchObjectByHash(*wire.Hash) (*wire.Object, error)

	// ForEachObject calls fn for every stored object, in no particular
	// order. Iteration stops at the first error fn returns, which is then
	// returned.
	//
	// WARNING: fn must not mutate the object or its inventory hash.
	ForEachObject(fn func(*wire.Hash, *wire.Object) error) error

	// InsertObject stores obj under hash. If the hash is already present
	// the stored object is left untouched and ErrDuplicateObject is
	// returned.
	InsertObject(*wire.Hash, *wire.Object) error

	// MarkSent sets the sent flag of the object with the given hash.
	MarkSent(*wire.Hash) error

	// ObjectCount returns the number of objects in the database.
	ObjectCount() (int, error)

	// Sync verifies that the database is coherent on disk and no
	// outstanding transactions are in flight.
	Sync() error
}

// DriverDB defines a structure for backend drivers to use when they registered
// themselves as a backend which implements the Db interface.
type DriverDB struct {
	DbType   string
	CreateDB func(args ...interface{}) (pbdb Db, err error)
	OpenDB   func(args ...interface{}) (pbdb Db, err error)
}

// driverList holds all of the registered database backends.
var driverList []DriverDB

// AddDBDriver adds a back end database driver to available interfaces.
func AddDBDriver(instance DriverDB) {
	for _, drv := range driverList {
		if drv.DbType == instance.DbType {
			return
		}
	}
	driverList = append(driverList, instance)
}

// CreateDB intializes and opens a database.
func CreateDB(dbtype string, args ...interface{}) (pbdb Db, err error) {
	for _, drv := range driverList {
		if drv.DbType == dbtype {
			if drv.CreateDB == nil {
				return nil, ErrNotImplemented
			}
			return drv.CreateDB(args...)
		}
	}
	return nil, ErrDbUnknownType
}

// OpenDB opens an existing database.
func OpenDB(dbtype string, args ...interface{}) (pbdb Db, err error) {
	for _, drv := range driverList {
		if drv.DbType == dbtype {
			return drv.OpenDB(args...)
		}
	}
	return nil, ErrDbUnknownType
}

// SupportedDBs returns a slice of strings that represent the database drivers
// that have been registered and are therefore supported.
func SupportedDBs() []string {
	var supportedDBs []string
	for _, drv := range driverList {
		supportedDBs = append(supportedDBs, drv.DbType)
	}
	return supportedDBs
}
