// Originally derived from: btcsuite/btcd/peer.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"sync"
	"sync/atomic"
)

const (
	// sendQueueSize is the size of the control message queue.
	sendQueueSize = 5
)

// message is a control message waiting to be written.
type message struct {
	command string
	payload []byte
}

// send writes everything that goes to the remote peer: control messages
// queued by the read loop, then relay objects in the order the Logic hands
// them out.
type send struct {
	peer *Peer

	// Sends control messages to the outHandler function.
	msgQueue chan message
	// Wakes the outHandler when new objects may be available.
	wake chan struct{}
	// used to turn off the send
	quit chan struct{}

	doneWg sync.WaitGroup

	// The state of the send queue.
	started int32
	stopped int32
}

// QueueMessage queues up a control message to be sent to the remote peer as
// soon as the connection is ready. Control messages go out before any queued
// object.
func (send *send) QueueMessage(command string, payload []byte) error {
	if !send.Running() {
		return errors.New("Not running.")
	}

	select {
	case send.msgQueue <- message{command, payload}:
		return nil
	case <-send.quit:
		return errors.New("Not running.")
	}
}

// Wake tells the outHandler to ask the Logic for objects again. It never
// blocks.
func (send *send) Wake() {
	select {
	case send.wake <- struct{}{}:
	default:
	}
}

// Start starts the send.
func (send *send) Start() {
	// Already starting?
	if atomic.AddInt32(&send.started, 1) != 1 {
		return
	}

	send.doneWg.Add(1)
	atomic.StoreInt32(&send.stopped, 0)

	go send.outHandler()
}

// Running returns whether the send queue is running.
func (send *send) Running() bool {
	return atomic.LoadInt32(&send.started) > 0 &&
		atomic.LoadInt32(&send.stopped) == 0
}

// Stop stops the send and waits for the outHandler to exit. A send cannot be
// restarted.
func (send *send) Stop() {
	// Already stopping?
	if atomic.AddInt32(&send.stopped, 1) != 1 {
		return
	}

	close(send.quit)

	// Wait for the other goroutines to finish.
	send.doneWg.Wait()

	// Drain channels to ensure that no other go routine remains locked.
clean:
	for {
		select {
		case <-send.msgQueue:
		default:
			break clean
		}
	}
}

// write writes one message, reporting whether the connection is still
// usable. A failed write disconnects the peer.
func (send *send) write(command string, payload []byte) bool {
	err := send.peer.conn.WriteMessage(command, payload)
	if err != nil {
		log.Debug(send.peer.PrependAddr("Write failed: "), err)
		// Run in a separate go routine because Disconnect waits for
		// outHandler to quit.
		go send.peer.Disconnect()
		return false
	}
	return true
}

// outHandler handles all outgoing messages for the peer. It must be run as a
// goroutine.
func (send *send) outHandler() {
	p := send.peer

out:
	for {
		// Control messages always go first.
		select {
		case <-send.quit:
			break out
		case msg := <-send.msgQueue:
			if !send.write(msg.command, msg.payload) {
				break out
			}
			continue
		default:
		}

		// Objects wait until the remote has sent its version.
		if p.VersionKnown() {
			hash, obj, ok := p.logic.NextObject(p)
			if ok {
				if !send.write(obj.Command(), obj.Payload) {
					break out
				}
				p.logic.ObjectSent(p, hash)
				continue
			}
		}

		select {
		case <-send.quit:
			break out
		case msg := <-send.msgQueue:
			if !send.write(msg.command, msg.payload) {
				break out
			}
		case <-send.wake:
		}
	}

	send.doneWg.Done()
}

// newSend returns a new stopped send for p.
func newSend(p *Peer) *send {
	return &send{
		peer:     p,
		msgQueue: make(chan message, sendQueueSize),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  1,
	}
}
