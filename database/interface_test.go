// Originally derived from: btcsuite/btcd/database/interface_test.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/prodigeni/bitcoin-broadcast/database"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// testContext is used to store context information about a running test which
// is passed into helper functions.
type testContext struct {
	t      *testing.T
	dbType string
	db     database.Db
}

// create a new database after clearing out the old one and return the teardown
// function
func (tc *testContext) newDb() func() {
	db, teardown, err := createDB(tc.dbType)
	if err != nil {
		tc.t.Fatalf("Failed to create test database (%s) %v", tc.dbType, err)
	}
	tc.db = db
	return teardown
}

// Some objects that we use for testing.
var testObj = []*wire.Object{
	wire.NewObject(wire.ObjectTypeTx, wire.HeightUnconfirmed,
		[]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0}),
	wire.NewObject(wire.ObjectTypeBlock, 212673, bytes.Repeat([]byte{7}, 81)),
	wire.NewObject(wire.ObjectTypeAddr, wire.HeightUnconfirmed,
		[]byte{0x01, 0x02, 0x03}),
	wire.NewObject(wire.ObjectTypeOther, wire.HeightUnconfirmed, []byte{}),
}

func inventoryHash(t *testing.T, obj *wire.Object) *wire.Hash {
	hash, err := obj.InventoryHash()
	if err != nil {
		t.Fatalf("InventoryHash: %v", err)
	}
	return hash
}

// copyObject returns an independent copy of obj so tests can insert it
// without sharing state with other tests.
func copyObject(obj *wire.Object) *wire.Object {
	return wire.NewObject(obj.Type, obj.Height,
		append([]byte{}, obj.Payload...))
}

func sameObject(a, b *wire.Object) bool {
	return a.Type == b.Type && a.Height == b.Height && a.Sent == b.Sent &&
		bytes.Equal(a.Payload, b.Payload)
}

func testSync(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	err := tc.db.Sync()
	if err != nil {
		tc.t.Errorf("Sync (%s): got error %v", tc.dbType, err)
	}
}

// testObject tests InsertObject, ExistsObject, FetchObjectByHash and
// ObjectCount.
func testObject(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	for i, o := range testObj {
		obj := copyObject(o)
		hash := inventoryHash(tc.t, obj)

		exists, err := tc.db.ExistsObject(hash)
		if err != nil {
			tc.t.Fatalf("ExistsObject (%s) #%d: %v", tc.dbType, i, err)
		}
		if exists {
			tc.t.Errorf("ExistsObject (%s) #%d: object exists before "+
				"insertion", tc.dbType, i)
		}

		_, err = tc.db.FetchObjectByHash(hash)
		if err != database.ErrNonexistentObject {
			tc.t.Errorf("FetchObjectByHash (%s) #%d: got %v, want %v",
				tc.dbType, i, err, database.ErrNonexistentObject)
		}

		if err = tc.db.InsertObject(hash, obj); err != nil {
			tc.t.Fatalf("InsertObject (%s) #%d: %v", tc.dbType, i, err)
		}

		exists, err = tc.db.ExistsObject(hash)
		if err != nil || !exists {
			tc.t.Errorf("ExistsObject (%s) #%d: got (%v, %v), want "+
				"(true, nil)", tc.dbType, i, exists, err)
		}

		fetched, err := tc.db.FetchObjectByHash(hash)
		if err != nil {
			tc.t.Fatalf("FetchObjectByHash (%s) #%d: %v", tc.dbType, i,
				err)
		}
		if !sameObject(fetched, o) {
			tc.t.Errorf("FetchObjectByHash (%s) #%d\n got: %s want: %s",
				tc.dbType, i, spew.Sdump(fetched), spew.Sdump(o))
		}

		count, err := tc.db.ObjectCount()
		if err != nil || count != i+1 {
			tc.t.Errorf("ObjectCount (%s): got (%d, %v), want (%d, nil)",
				tc.dbType, count, err, i+1)
		}
	}
}

// testDuplicate ensures the first object inserted under a hash is kept.
func testDuplicate(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	first := wire.NewObject(wire.ObjectTypeBlock, 10,
		append(bytes.Repeat([]byte{3}, wire.BlockHeaderLen), 0x00))
	second := wire.NewObject(wire.ObjectTypeBlock, 99,
		append(bytes.Repeat([]byte{3}, wire.BlockHeaderLen), 0x01, 0x02))
	hash := inventoryHash(tc.t, first)

	if err := tc.db.InsertObject(hash, first); err != nil {
		tc.t.Fatalf("InsertObject (%s): %v", tc.dbType, err)
	}
	err := tc.db.InsertObject(inventoryHash(tc.t, second), second)
	if err != database.ErrDuplicateObject {
		tc.t.Errorf("InsertObject (%s): got %v, want %v", tc.dbType, err,
			database.ErrDuplicateObject)
	}

	fetched, err := tc.db.FetchObjectByHash(hash)
	if err != nil {
		tc.t.Fatalf("FetchObjectByHash (%s): %v", tc.dbType, err)
	}
	if fetched.Height != 10 || len(fetched.Payload) != wire.BlockHeaderLen+1 {
		tc.t.Errorf("FetchObjectByHash (%s): second insert replaced the "+
			"first\n got: %s", tc.dbType, spew.Sdump(fetched))
	}

	count, _ := tc.db.ObjectCount()
	if count != 1 {
		tc.t.Errorf("ObjectCount (%s): got %d, want 1", tc.dbType, count)
	}
}

// testMarkSent tests setting the sent flag.
func testMarkSent(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	obj := copyObject(testObj[0])
	hash := inventoryHash(tc.t, obj)

	if err := tc.db.MarkSent(hash); err != database.ErrNonexistentObject {
		tc.t.Errorf("MarkSent (%s): got %v, want %v", tc.dbType, err,
			database.ErrNonexistentObject)
	}

	tc.db.InsertObject(hash, obj)
	if err := tc.db.MarkSent(hash); err != nil {
		tc.t.Fatalf("MarkSent (%s): %v", tc.dbType, err)
	}

	fetched, err := tc.db.FetchObjectByHash(hash)
	if err != nil {
		tc.t.Fatalf("FetchObjectByHash (%s): %v", tc.dbType, err)
	}
	if !fetched.Sent {
		tc.t.Errorf("MarkSent (%s): sent flag not set", tc.dbType)
	}

	// Marking twice is harmless.
	if err := tc.db.MarkSent(hash); err != nil {
		tc.t.Errorf("MarkSent (%s): %v", tc.dbType, err)
	}
}

// testForEachObject tests iterating over the database.
func testForEachObject(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	want := make(map[wire.Hash]*wire.Object)
	for _, o := range testObj {
		obj := copyObject(o)
		hash := inventoryHash(tc.t, obj)
		tc.db.InsertObject(hash, obj)
		want[*hash] = o
	}

	seen := 0
	err := tc.db.ForEachObject(func(hash *wire.Hash, obj *wire.Object) error {
		seen++
		o, ok := want[*hash]
		if !ok {
			tc.t.Errorf("ForEachObject (%s): unexpected hash %v",
				tc.dbType, hash)
			return nil
		}
		if !sameObject(obj, o) {
			tc.t.Errorf("ForEachObject (%s)\n got: %s want: %s",
				tc.dbType, spew.Sdump(obj), spew.Sdump(o))
		}
		return nil
	})
	if err != nil {
		tc.t.Errorf("ForEachObject (%s): %v", tc.dbType, err)
	}
	if seen != len(want) {
		tc.t.Errorf("ForEachObject (%s): saw %d objects, want %d",
			tc.dbType, seen, len(want))
	}

	// An error from the callback stops iteration and is returned.
	stop := errors.New("stop")
	calls := 0
	err = tc.db.ForEachObject(func(*wire.Hash, *wire.Object) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		tc.t.Errorf("ForEachObject (%s): got (%v, %d calls), want "+
			"(%v, 1 call)", tc.dbType, err, calls, stop)
	}
}

// testClosed ensures operations on a closed database fail.
func testClosed(tc *testContext) {
	teardown := tc.newDb()
	defer teardown()

	hash := inventoryHash(tc.t, testObj[0])
	tc.db.Close()

	if _, err := tc.db.ExistsObject(hash); err != database.ErrDbClosed {
		tc.t.Errorf("ExistsObject (%s): got %v, want %v", tc.dbType, err,
			database.ErrDbClosed)
	}
	if _, err := tc.db.FetchObjectByHash(hash); err != database.ErrDbClosed {
		tc.t.Errorf("FetchObjectByHash (%s): got %v, want %v", tc.dbType,
			err, database.ErrDbClosed)
	}
	err := tc.db.InsertObject(hash, copyObject(testObj[0]))
	if err != database.ErrDbClosed {
		tc.t.Errorf("InsertObject (%s): got %v, want %v", tc.dbType, err,
			database.ErrDbClosed)
	}
	if err := tc.db.MarkSent(hash); err != database.ErrDbClosed {
		tc.t.Errorf("MarkSent (%s): got %v, want %v", tc.dbType, err,
			database.ErrDbClosed)
	}
	if _, err := tc.db.ObjectCount(); err != database.ErrDbClosed {
		tc.t.Errorf("ObjectCount (%s): got %v, want %v", tc.dbType, err,
			database.ErrDbClosed)
	}
}

// testInterface tests performs tests for the various interfaces of the
// database package which require state in the database for the given database
// type.
func testInterface(t *testing.T, dbType string) {
	// Create a test context to pass around.
	context := testContext{t: t, dbType: dbType}

	testSync(&context)
	testObject(&context)
	testDuplicate(&context)
	testMarkSent(&context)
	testForEachObject(&context)
	testClosed(&context)
}
