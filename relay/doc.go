// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package relay implements the priority queue that decides the order in which
inventory is transmitted to a peer.

A Queue holds inventory hashes only. The records they name are looked up in a
Store every time two entries are compared, so changes to a record, such as its
sent flag being set, take effect the next time the queue is reordered.

Entries are ordered by:

	1. objects already sent to some peer before objects never sent
	2. lower declared height before higher
	3. lower object type ordinal before higher
	4. earlier insertion before later

A hash whose record cannot be found in the store means the queue and the store
disagree; the queue panics with an *InvariantError rather than continue with
an undefined order.
*/
package relay
