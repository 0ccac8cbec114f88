// Originally derived from: btcsuite/btcd/database/doc.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package database provides a database interface for storing relayed bitcoin
network objects.

Basic Design

Every object is stored under its inventory hash, the double SHA-256 of its
identity bytes. The first object inserted under a hash wins; later inserts
return ErrDuplicateObject and leave the stored object untouched. Nothing is
ever removed, so a long running process holds every object it has seen.

The only mutable part of a stored object is its sent flag, set through
MarkSent once the object has been transmitted.

Usage

At the highest level, the use of this packages just requires that you import it,
setup a database, insert some data into it, and optionally, query the data back.
Drivers register themselves on import:

	import (
		"github.com/prodigeni/bitcoin-broadcast/database"
		_ "github.com/prodigeni/bitcoin-broadcast/database/memdb"
	)

	db, err := database.OpenDB("memdb")
*/
package database
