// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prodigeni/bitcoin-broadcast/wire"
)

const (
	// negotiateTimeoutSeconds is the number of seconds of inactivity before
	// we timeout a peer that hasn't completed the initial version
	// negotiation.
	negotiateTimeoutSeconds = 30

	// idleTimeoutMinutes is the number of minutes of inactivity before
	// we time out a peer. Bitcoin nodes ping every two minutes.
	idleTimeoutMinutes = 5

	// pingPayloadLen is the size of the nonce carried by ping and pong.
	pingPayloadLen = 8
)

// Logic is the part of the client that decides what to do with the objects a
// peer receives and what the peer transmits.
type Logic interface {
	// HandleMessage is called with every message other than the handshake
	// and ping messages the peer answers itself. Returning an error
	// disconnects the peer.
	HandleMessage(p *Peer, command string, payload []byte) error

	// NextObject returns the next object to transmit to p, or false if
	// there is none.
	NextObject(p *Peer) (*wire.Hash, *wire.Object, bool)

	// ObjectSent is called after the object returned by NextObject has been
	// written to p.
	ObjectSent(p *Peer, hash *wire.Hash)

	// DonePeer is called once when a started peer disconnects.
	DonePeer(p *Peer)
}

// Peer provides for the handling of messages from a bitcoin peer. Messages
// that are not part of the handshake are passed on to the Logic. Objects are
// written by a send loop that asks the Logic what to transmit next.
type Peer struct {
	Persistent bool
	Inbound    bool

	logic Logic
	send  *send
	conn  Connection

	// Some variables only to be used atomically which tell the state of the
	// peer.
	started    int32 // whether the peer has started.
	disconnect int32 // Whether a disconnect is scheduled.

	StatsMtx       sync.RWMutex // protects all statistics below here.
	versionKnown   bool
	verAckReceived bool
	userAgent      string
	startHeight    int32
	bestHeight     int32
	timeStarted    time.Time
}

// VersionKnown returns whether or not the version of a peer is known locally.
// It is safe for concurrent access.
func (p *Peer) VersionKnown() bool {
	p.StatsMtx.RLock()
	defer p.StatsMtx.RUnlock()

	return p.versionKnown
}

// HandshakeComplete returns whether the remote peer has both announced its
// version and acknowledged ours. It is safe for concurrent access.
func (p *Peer) HandshakeComplete() bool {
	p.StatsMtx.RLock()
	defer p.StatsMtx.RUnlock()

	return p.versionKnown && p.verAckReceived
}

// UserAgent returns the user agent the remote peer announced.
func (p *Peer) UserAgent() string {
	p.StatsMtx.RLock()
	defer p.StatsMtx.RUnlock()

	return p.userAgent
}

// StartHeight returns the best block height the remote peer announced in its
// version message.
func (p *Peer) StartHeight() int32 {
	p.StatsMtx.RLock()
	defer p.StatsMtx.RUnlock()

	return p.startHeight
}

// BestHeight returns the highest block height known for the remote peer.
func (p *Peer) BestHeight() int32 {
	p.StatsMtx.RLock()
	defer p.StatsMtx.RUnlock()

	return p.bestHeight
}

// UpdateBestHeight raises the best height of the remote peer to height. Lower
// heights are ignored.
func (p *Peer) UpdateBestHeight(height int32) {
	p.StatsMtx.Lock()
	defer p.StatsMtx.Unlock()

	if height > p.bestHeight {
		p.bestHeight = height
	}
}

// BytesRead returns the number of bytes read from the remote peer.
func (p *Peer) BytesRead() uint64 {
	return p.conn.BytesRead()
}

// BytesWritten returns the number of bytes written to the remote peer.
func (p *Peer) BytesWritten() uint64 {
	return p.conn.BytesWritten()
}

// PrependAddr is a helper function for logging that adds the ip address to
// the start of the string to be logged.
func (p *Peer) PrependAddr(str string) string {
	return fmt.Sprintf("%s : %s", p.Addr().String(), str)
}

// Addr returns the address of the remote peer in the form of a net.Addr
func (p *Peer) Addr() net.Addr {
	return p.conn.RemoteAddr()
}

// Connected returns whether or not the peer is currently connected.
func (p *Peer) Connected() bool {
	return p.conn.Connected() &&
		atomic.LoadInt32(&p.started) > 0 &&
		atomic.LoadInt32(&p.disconnect) == 0
}

// Disconnect disconnects the peer by closing the connection and signals to
// the Logic that the peer is done. It also sets a flag so the impending
// shutdown can be detected.
func (p *Peer) Disconnect() {
	// Already stopping?
	if atomic.AddInt32(&p.disconnect, 1) != 1 {
		return
	}

	// Don't stop if we're not running.
	if atomic.LoadInt32(&p.started) == 0 {
		atomic.StoreInt32(&p.disconnect, 0)
		return
	}
	log.Info(p.PrependAddr("Disconnecting."))

	p.conn.Close()
	p.send.Stop()

	p.logic.DonePeer(p)
	log.Info(p.PrependAddr("Disconnected."))
}

// Start connects to the remote peer if necessary, writes the join message
// and starts the read and write loops.
func (p *Peer) Start() error {
	if atomic.AddInt32(&p.started, 1) != 1 {
		return nil
	}
	log.Info(p.PrependAddr("Starting."))

	if err := p.connect(); err != nil {
		atomic.StoreInt32(&p.started, 0)
		return err
	}

	if err := p.conn.WriteJoin(); err != nil {
		p.conn.Close()
		atomic.StoreInt32(&p.started, 0)
		return err
	}

	p.StatsMtx.Lock()
	p.timeStarted = time.Now()
	p.StatsMtx.Unlock()

	p.send.Start()

	// Start processing input.
	go p.inHandler(negotiateTimeoutSeconds, idleTimeoutMinutes)

	log.Info(p.PrependAddr("Started."))
	return nil
}

// connect connects the peer object to the remote peer if it is not already
// connected.
func (p *Peer) connect() error {
	if p.conn.Connected() {
		return nil
	}

	if atomic.LoadInt32(&p.disconnect) != 0 {
		return errors.New("Disconnection in progress.")
	}

	return p.conn.Connect()
}

// WakeSend tells the send loop that the Logic may have new objects for this
// peer. It never blocks.
func (p *Peer) WakeSend() {
	p.send.Wake()
}

// QueueMessage queues a control message to be sent to the remote peer ahead
// of any object.
func (p *Peer) QueueMessage(command string, payload []byte) error {
	return p.send.QueueMessage(command, payload)
}

// HandleVersionMsg records the user agent and best height a peer announces
// and acknowledges the version. Only one version is allowed per peer.
func (p *Peer) HandleVersionMsg(payload []byte) error {
	userAgent, err := wire.VersionUserAgent(payload)
	if err != nil {
		return err
	}
	height, err := wire.VersionStartHeight(payload)
	if err != nil {
		return err
	}

	p.StatsMtx.Lock()
	if p.versionKnown {
		p.StatsMtx.Unlock()
		return errors.New("Only one version message allowed per peer.")
	}
	p.versionKnown = true
	p.userAgent = userAgent
	p.startHeight = height
	if height > p.bestHeight {
		p.bestHeight = height
	}
	p.StatsMtx.Unlock()

	log.Debug(p.PrependAddr(fmt.Sprintf("Version msg received: %s at height %d.",
		userAgent, height)))

	if err := p.QueueMessage(wire.CmdVerAck, nil); err != nil {
		return err
	}
	p.WakeSend()
	return nil
}

// HandleVerAckMsg records that the remote peer accepted our version.
func (p *Peer) HandleVerAckMsg() error {
	p.StatsMtx.Lock()
	p.verAckReceived = true
	p.StatsMtx.Unlock()

	log.Debug(p.PrependAddr("Ver ack msg received."))
	return nil
}

// HandlePingMsg answers a ping with a pong carrying the same nonce.
func (p *Peer) HandlePingMsg(payload []byte) error {
	if len(payload) != pingPayloadLen {
		return fmt.Errorf("Ping with %d byte payload.", len(payload))
	}
	return p.QueueMessage(wire.CmdPong, payload)
}

// inHandler handles all incoming messages for the peer. It must be run as a
// goroutine.
func (p *Peer) inHandler(handshakeTimeoutSeconds, idleTimeoutMinutes uint) {
	// peers must announce their version within a shorter timeframe than a
	// general idle timeout. The timer is then reset below to
	// idleTimeoutMinutes for all future messages.
	idleTimer := time.AfterFunc(time.Duration(handshakeTimeoutSeconds)*time.Second, func() {
		log.Error(p.PrependAddr("Disconnecting due to idle time out."))
		p.Disconnect()
	})

out:
	for atomic.LoadInt32(&p.disconnect) == 0 {
		hdr, payload, err := p.conn.ReadMessage()
		// Stop the timer now, if we go around again we will reset it.
		idleTimer.Stop()
		if err != nil {
			if err != errNoConnection {
				log.Debug(p.PrependAddr("Invalid message received: "), err)
			}
			break out
		}

		switch hdr.Command {
		case wire.CmdVersion:
			err = p.HandleVersionMsg(payload)

		case wire.CmdVerAck:
			err = p.HandleVerAckMsg()

		case wire.CmdPing:
			err = p.HandlePingMsg(payload)

		case wire.CmdPong:

		default:
			if !p.VersionKnown() {
				err = errors.New("Version not yet received.")
				break
			}
			err = p.logic.HandleMessage(p, hdr.Command, payload)
		}

		if err != nil {
			log.Error(p.PrependAddr("Error handling message: "), err)
			break out
		}

		idleTimer.Reset(time.Duration(idleTimeoutMinutes) * time.Minute)
	}

	idleTimer.Stop()

	// Ensure connection is closed and notify the logic that the peer is
	// done.
	p.Disconnect()
}

// NewPeer returns a new bitcoin peer for the given Logic and connection.
func NewPeer(logic Logic, conn Connection, inbound, persistent bool) *Peer {
	p := &Peer{
		logic:      logic,
		conn:       conn,
		Inbound:    inbound,
		Persistent: persistent,
	}
	p.send = newSend(p)

	return p
}
