// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package inventory implements the content-addressed object store of the
broadcast client.

Every object admitted is keyed by the double SHA-256 of its identity bytes:
the 80-byte header for blocks and the full payload for everything else. The
first object admitted under a hash wins; later admissions of the same hash
are reported as duplicates and leave the stored record untouched.

Objects are never removed, so the inventory grows for as long as the process
runs. Records are persisted through any database.Db driver.

The inventory is not safe for concurrent use on its own. Callers that admit
objects and schedule them for relay must serialize those operations.
*/
package inventory
