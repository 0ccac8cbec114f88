// Originally derived from: btcsuite/btcd/database/common_test.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database_test

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/prodigeni/bitcoin-broadcast/database"
	_ "github.com/prodigeni/bitcoin-broadcast/database/bdb"
	_ "github.com/prodigeni/bitcoin-broadcast/database/memdb"
)

// createDB creates a new db instance and returns a teardown function the caller
// should invoke when done testing to clean up.
func createDB(dbType string) (database.Db, func(), error) {
	// Handle memory database specially since it doesn't need the disk
	// specific handling.
	if dbType == "memdb" {
		db, err := database.OpenDB(dbType)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating db: %v", err)
		}

		// Setup a teardown function for cleaning up. This function is
		// returned to the caller to be invoked when it is done testing.
		teardown := func() {
			db.Close()
		}

		return db, teardown, nil
	}

	// Create temporary directory for test database.
	dir, err := ioutil.TempDir("", "broadcast_db")
	if err != nil {
		return nil, nil, err
	}

	// Create a new database.
	db, err := database.CreateDB(dbType, filepath.Join(dir, "objects.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("error creating db: %v", err)
	}

	// Setup a teardown function for cleaning up. This function is
	// returned to the caller to be invoked when it is done testing.
	teardown := func() {
		db.Close()
		os.RemoveAll(dir)
	}

	return db, teardown, nil
}
