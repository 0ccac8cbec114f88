// Originally derived from: btcsuite/btcd/database/memdb/driver.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memdb

import (
	"fmt"

	"github.com/prodigeni/bitcoin-broadcast/database"
)

func init() {
	database.AddDBDriver(database.DriverDB{
		DbType:   "memdb",
		CreateDB: openDB,
		OpenDB:   openDB,
	})
}

// openDB returns an empty inventory held in memory. Nothing is stored on
// disk, so creating and opening are the same operation.
func openDB(args ...interface{}) (database.Db, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("memdb: expected no arguments, got %d",
			len(args))
	}

	database.GetLog().Debug("Opening in-memory inventory")
	return newMemDb(), nil
}
