// Originally derived from: btcsuite/btcd/database/memdb/driver.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bdb

import (
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/btcsuite/btclog"
	"github.com/prodigeni/bitcoin-broadcast/database"
)

// dbVersion is the layout version written to new inventory files.
const dbVersion = 0x01

var log = btclog.Disabled

func init() {
	database.AddDBDriver(database.DriverDB{
		DbType:   "boltdb",
		CreateDB: CreateDB,
		OpenDB:   OpenDB,
	})
}

// dbPath extracts the file path from the arguments passed through the
// database package.
func dbPath(args []interface{}) (string, error) {
	if len(args) == 1 {
		if path, ok := args[0].(string); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("bdb: expected a single database path, got %v", args)
}

// CreateDB creates a new inventory file at the given path. It fails with
// database.ErrDbExists if the file is already there.
func CreateDB(args ...interface{}) (database.Db, error) {
	path, err := dbPath(args)
	if err != nil {
		return nil, err
	}

	if _, err = os.Stat(path); err == nil {
		return nil, database.ErrDbExists
	}

	return OpenDB(path)
}

// OpenDB opens the inventory file at the given path, creating it if it does
// not exist yet.
func OpenDB(args ...interface{}) (database.Db, error) {
	path, err := dbPath(args)
	if err != nil {
		return nil, err
	}

	log = database.GetLog()

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err = db.Update(initBuckets); err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Opened inventory file %s", path)
	return &BoltDB{DB: db}, nil
}

// initBuckets creates the buckets of a new file and checks the version of an
// existing one.
func initBuckets(tx *bolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
		return err
	}

	misc, err := tx.CreateBucket(miscBucket)
	switch err {
	case nil:
		return misc.Put(versionKey, []byte{dbVersion})
	case bolt.ErrBucketExists:
	default:
		return err
	}

	v := tx.Bucket(miscBucket).Get(versionKey)
	if len(v) != 1 || v[0] != dbVersion {
		return fmt.Errorf("bdb: unrecognized inventory version %x", v)
	}
	return nil
}
