// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bdb implements an instance of the database package backed by BoltDB.
// The structure of the database is:
// - objectsByHash (bucket)
// -- Inventory hash (32 bytes) -> Object data
//
// - misc
// -- version -> uint8
//
// Object data is the storage encoding of wire.Object: type (1 byte), height
// (4 bytes, little endian), sent flag (1 byte), then the payload as a variable
// length byte array.
package bdb
