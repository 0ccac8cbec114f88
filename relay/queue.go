// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"container/heap"
	"fmt"

	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// Store is the source of the records that queued hashes refer to.
type Store interface {
	Lookup(*wire.Hash) (*wire.Object, error)
}

// InvariantError is the panic value raised when a queued hash has no record
// in the store.
type InvariantError struct {
	Hash wire.Hash
	Err  error
}

// Error satisfies the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("queued object %s missing from inventory: %v",
		e.Hash, e.Err)
}

// Unwrap returns the store error that caused the violation.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// entry is a queued hash, the fields of its record that decide its priority
// and the order in which it was inserted. Height and type never change after
// admission, so only sent is ever updated.
type entry struct {
	hash   wire.Hash
	sent   bool
	height uint32
	typ    wire.ObjectType
	seq    uint64
	index  int
}

// entryHeap implements heap.Interface over entries. byHash locates every
// queued entry for a hash.
type entryHeap struct {
	entries []*entry
	byHash  map[wire.Hash][]*entry
}

func (h *entryHeap) Len() int { return len(h.entries) }

func (h *entryHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *entryHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]

	if a.sent != b.sent {
		return a.sent
	}
	if a.height != b.height {
		return a.height < b.height
	}
	if a.typ != b.typ {
		return a.typ < b.typ
	}
	return a.seq < b.seq
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
	h.byHash[e.hash] = append(h.byHash[e.hash], e)
}

func (h *entryHeap) Pop() interface{} {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries[n-1] = nil
	h.entries = h.entries[:n-1]

	same := h.byHash[e.hash]
	for i, o := range same {
		if o == e {
			same = append(same[:i], same[i+1:]...)
			break
		}
	}
	if len(same) == 0 {
		delete(h.byHash, e.hash)
	} else {
		h.byHash[e.hash] = same
	}
	return e
}

// Queue is a priority queue of inventory hashes. It is not safe for
// concurrent access.
type Queue struct {
	h     entryHeap
	store Store
	seq   uint64
}

// NewQueue returns an empty queue whose entries refer to records in store.
func NewQueue(store Store) *Queue {
	return &Queue{
		h:     entryHeap{byHash: make(map[wire.Hash][]*entry)},
		store: store,
	}
}

// lookup returns the record stored under hash, panicking if the store does
// not have it.
func (q *Queue) lookup(hash *wire.Hash) *wire.Object {
	obj, err := q.store.Lookup(hash)
	if err != nil {
		panic(&InvariantError{Hash: *hash, Err: err})
	}
	return obj
}

// Enqueue inserts hash in priority order. The same hash may be queued more
// than once.
func (q *Queue) Enqueue(hash *wire.Hash) {
	obj := q.lookup(hash)
	heap.Push(&q.h, &entry{
		hash:   *hash,
		sent:   obj.Sent,
		height: obj.Height,
		typ:    obj.Type,
		seq:    q.seq,
	})
	q.seq++
}

// Dequeue removes the highest priority hash and returns it with its record.
// It neither marks the record sent nor modifies the store. The final return
// value is false when the queue is empty.
func (q *Queue) Dequeue() (*wire.Hash, *wire.Object, bool) {
	if q.h.Len() == 0 {
		return nil, nil, false
	}
	e := heap.Pop(&q.h).(*entry)
	hash := e.hash
	return &hash, q.lookup(&hash), true
}

// Len returns the number of queued hashes.
func (q *Queue) Len() int {
	return q.h.Len()
}

// MarkSent moves every queued entry for hash ahead of the entries whose
// objects have not been sent. The store is not modified.
func (q *Queue) MarkSent(hash *wire.Hash) {
	for _, e := range q.h.byHash[*hash] {
		if e.sent {
			continue
		}
		e.sent = true
		heap.Fix(&q.h, e.index)
	}
}
