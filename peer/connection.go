// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/prodigeni/bitcoin-broadcast/wire"
	"golang.org/x/time/rate"
)

// dialTimeout is how long an outbound connection attempt may take.
const dialTimeout = 30 * time.Second

var errNoConnection = errors.New("No connection established.")

// Connection is a bitcoin connection that abstracts the underlying tcp
// connection away. The user of the Connection only deals with framed
// messages instead of the underlying byte stream.
// This is written as an interface so that it can easily be swapped out for a
// mock object for testing purposes.
type Connection interface {
	WriteMessage(command string, payload []byte) error
	WriteJoin() error
	ReadMessage() (*wire.MessageHeader, []byte, error)
	BytesWritten() uint64
	BytesRead() uint64
	LastWrite() time.Time
	LastRead() time.Time
	RemoteAddr() net.Addr
	Connected() bool
	Connect() error
	Close()
}

// connection implements the Connection interface and connects to a
// real outside bitcoin node over the internet.
type connection struct {
	conn          net.Conn
	connMtx       sync.RWMutex
	addr          net.Addr
	sentMtx       sync.RWMutex
	bytesSent     uint64
	lastWrite     time.Time
	receivedMtx   sync.RWMutex
	bytesReceived uint64
	lastRead      time.Time
	timeConnected time.Time
	maxUp         *rate.Limiter
	maxDown       *rate.Limiter
}

// WriteMessage frames the payload under command and sends it along the tcp
// connection.
func (pc *connection) WriteMessage(command string, payload []byte) error {
	conn := pc.netConn()
	if conn == nil {
		return errNoConnection
	}

	n, err := wire.WriteMessageN(conn, command, payload, wire.MainNet)
	pc.wrote(n)

	if err != nil {
		if !pc.Connected() { // Connection might have been closed while writing.
			return errNoConnection
		}
		pc.Close()
		return err
	}

	return nil
}

// WriteJoin sends the join message along the tcp connection.
func (pc *connection) WriteJoin() error {
	conn := pc.netConn()
	if conn == nil {
		return errNoConnection
	}

	err := wire.WriteJoin(conn)
	if err != nil {
		pc.Close()
		return err
	}
	pc.wrote(wire.JoinMessageLen)
	return nil
}

// wrote accounts for n bytes sent and waits until the upload rate allows
// more.
func (pc *connection) wrote(n int) {
	pc.sentMtx.Lock()
	pc.bytesSent += uint64(n)
	pc.lastWrite = time.Now()
	pc.sentMtx.Unlock()

	throttle(pc.maxUp, n)
}

// ReadMessage reads a bitcoin message from the tcp connection. Any error,
// including a malformed message, closes the connection.
func (pc *connection) ReadMessage() (*wire.MessageHeader, []byte, error) {
	conn := pc.netConn()
	if conn == nil {
		return nil, nil, errNoConnection
	}

	n, hdr, payload, err := wire.ReadMessageN(conn, wire.MainNet)

	pc.receivedMtx.Lock()
	pc.bytesReceived += uint64(n)
	pc.lastRead = time.Now()
	pc.receivedMtx.Unlock()

	throttle(pc.maxDown, n)

	if err != nil {
		if !pc.Connected() { // Connection might have been closed while reading.
			return nil, nil, errNoConnection
		}
		pc.Close()
		return nil, nil, err
	}

	return hdr, payload, nil
}

func (pc *connection) netConn() net.Conn {
	pc.connMtx.RLock()
	defer pc.connMtx.RUnlock()
	return pc.conn
}

// BytesWritten returns the total number of bytes written to this connection.
func (pc *connection) BytesWritten() uint64 {
	pc.sentMtx.RLock()
	defer pc.sentMtx.RUnlock()
	return pc.bytesSent
}

// BytesRead returns the total number of bytes read by this connection.
func (pc *connection) BytesRead() uint64 {
	pc.receivedMtx.RLock()
	defer pc.receivedMtx.RUnlock()
	return pc.bytesReceived
}

// LastWrite returns the last time that a message was written.
func (pc *connection) LastWrite() time.Time {
	pc.sentMtx.RLock()
	defer pc.sentMtx.RUnlock()
	return pc.lastWrite
}

// LastRead returns the last time that a message was read.
func (pc *connection) LastRead() time.Time {
	pc.receivedMtx.RLock()
	defer pc.receivedMtx.RUnlock()
	return pc.lastRead
}

// RemoteAddr returns the address of the remote peer.
func (pc *connection) RemoteAddr() net.Addr {
	return pc.addr
}

// Close disconnects the peer and stops running the connection.
func (pc *connection) Close() {
	pc.connMtx.Lock()
	conn := pc.conn
	pc.conn = nil
	pc.connMtx.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Connected returns whether the connection is connected to a remote peer.
func (pc *connection) Connected() bool {
	return pc.netConn() != nil
}

var dial = func(network, addr string) (net.Conn, error) {
	return net.DialTimeout(network, addr, dialTimeout)
}

// Connect connects to the remote peer.
func (pc *connection) Connect() error {
	if pc.Connected() {
		return errors.New("already connected")
	}

	conn, err := dial("tcp", pc.addr.String())
	if err != nil {
		return err
	}

	pc.timeConnected = time.Now()
	pc.connMtx.Lock()
	pc.conn = conn
	pc.connMtx.Unlock()
	return nil
}

// SetDialer sets the dialer used by peer to connect to peers.
func SetDialer(dialer func(string, string) (net.Conn, error)) {
	dial = dialer
}

// newLimiter returns a limiter allowing bytesPerSec bytes per second, or nil
// for no limit.
func newLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// throttle blocks until l has room for n more bytes. A message larger than
// the limiter's burst is charged a burst at a time.
func throttle(l *rate.Limiter, n int) {
	if l == nil {
		return
	}
	for n > 0 {
		c := n
		if b := l.Burst(); c > b {
			c = b
		}
		l.WaitN(context.Background(), c)
		n -= c
	}
}

// NewConnection creates a new unconnected Connection to addr. maxDown and
// maxUp are in bytes per second; zero means unlimited.
func NewConnection(addr net.Addr, maxDown, maxUp int64) Connection {
	return &connection{
		addr:    addr,
		maxDown: newLimiter(maxDown),
		maxUp:   newLimiter(maxUp),
	}
}

// newConnectedConnection wraps an already established net.Conn.
func newConnectedConnection(conn net.Conn, maxDown, maxUp int64) *connection {
	return &connection{
		conn:          conn,
		addr:          conn.RemoteAddr(),
		timeConnected: time.Now(),
		maxDown:       newLimiter(maxDown),
		maxUp:         newLimiter(maxUp),
	}
}
