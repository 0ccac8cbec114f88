// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prodigeni/bitcoin-broadcast/peer"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// MockConn is one end of an in-memory pipe with configurable addresses. The
// test drives the other end.
type MockConn struct {
	net.Conn
	localAddr  net.Addr
	remoteAddr net.Addr
}

// LocalAddr returns the localAddr field of the fake connection and satisfies
// the net.Conn interface.
func (mc *MockConn) LocalAddr() net.Addr {
	return mc.localAddr
}

// RemoteAddr returns the remoteAddr field of the fake connection and satisfies
// the net.Conn interface.
func (mc *MockConn) RemoteAddr() net.Addr {
	return mc.remoteAddr
}

// NewMockConn creates a new MockConn and returns it with the remote end of
// the pipe. If closed is set both ends are closed already.
func NewMockConn(localAddr, remoteAddr net.Addr, closed bool) (*MockConn, net.Conn) {
	local, remote := net.Pipe()
	if closed {
		local.Close()
		remote.Close()
	}
	return &MockConn{
		Conn:       local,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
	}, remote
}

// dialNewMockConn is a function that can be swapped with the dial var for
// testing purposes. Remote ends of dialed connections are sent on remotes if
// it is not nil.
func dialNewMockConn(localAddr net.Addr, fail, closed bool, remotes chan net.Conn) func(service, addr string) (net.Conn, error) {
	return func(service, addr string) (net.Conn, error) {
		if fail {
			return nil, errors.New("Connection failed.")
		}
		host, portstr, _ := net.SplitHostPort(addr)
		port, _ := strconv.ParseInt(portstr, 10, 0)
		mc, remote := NewMockConn(localAddr,
			&net.TCPAddr{IP: net.ParseIP(host), Port: int(port)}, closed)
		if remotes != nil {
			remotes <- remote
		}
		return mc, nil
	}
}

var (
	remoteAddr = &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8333}
	localAddr  = &net.TCPAddr{IP: net.ParseIP("192.168.0.1"), Port: 8333}
)

func TestDial(t *testing.T) {
	d := peer.TstSwapDial(dialNewMockConn(localAddr, false, false, nil))
	defer peer.TstSwapDial(d)

	conn := peer.NewConnection(remoteAddr, 0, 0)
	if conn == nil {
		t.Fatalf("No connection returned.")
	}
	if conn.Connected() {
		t.Errorf("Connection connected before Connect.")
	}
	err := conn.Connect()
	if err != nil {
		t.Errorf("Error %s returned.", err)
	}
	if !conn.Connected() {
		t.Errorf("Connection not connected after Connect.")
	}
	err = conn.Connect()
	if err == nil {
		t.Errorf("Expected error for trying to connect twice.")
	}
	conn.Close()

	peer.TstSwapDial(dialNewMockConn(localAddr, true, false, nil))
	conn = peer.NewConnection(remoteAddr, 0, 0)
	err = conn.Connect()
	if err == nil {
		t.Errorf("Error expected dialing failed connection.")
	}
}

// This tests error cases that are returned for connections which have not
// dialed in to the remote peer yet.
func TestUnconnectedConnection(t *testing.T) {
	conn := peer.NewConnection(remoteAddr, 0, 0)
	if conn.RemoteAddr() != remoteAddr {
		t.Errorf("Wrong remote addr: got %v, want %v", conn.RemoteAddr(),
			remoteAddr)
	}

	hdr, payload, err := conn.ReadMessage()
	if err == nil || hdr != nil || payload != nil {
		t.Error("It should be impossible to read messages before connection is established.")
	}

	err = conn.WriteMessage(wire.CmdVerAck, nil)
	if err == nil {
		t.Error("It should be impossible to write messages before connection is established.")
	}

	if err = conn.WriteJoin(); err == nil {
		t.Error("It should be impossible to write the join message before connection is established.")
	}
}

func TestInterruptedConnection(t *testing.T) {
	d := peer.TstSwapDial(dialNewMockConn(localAddr, false, true, nil))
	defer peer.TstSwapDial(d)

	conn := peer.NewConnection(remoteAddr, 0, 0)
	conn.Connect()
	hdr, _, err := conn.ReadMessage()
	if err == nil || hdr != nil {
		t.Error("Connection should be closed.")
	}

	conn = peer.NewConnection(remoteAddr, 0, 0)
	conn.Connect()
	err = conn.WriteMessage(wire.CmdVerAck, nil)
	if err == nil {
		t.Error("Connection should be closed.")
	}
	if conn.Connected() {
		t.Error("Failed write should close the connection.")
	}
}

func TestReadWriteCounters(t *testing.T) {
	mc, remote := NewMockConn(localAddr, remoteAddr, false)
	conn := peer.TstNewConnection(mc)
	defer conn.Close()

	payload := []byte{1, 2, 3, 4, 5}
	go wire.WriteMessage(remote, wire.CmdTx, payload, wire.MainNet)

	hdr, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if hdr.Command != wire.CmdTx || !bytes.Equal(got, payload) {
		t.Errorf("ReadMessage: got %s %s, want %s %s", hdr.Command,
			spew.Sdump(got), wire.CmdTx, spew.Sdump(payload))
	}
	want := uint64(wire.MessageHeaderSize + len(payload))
	if conn.BytesRead() != want {
		t.Errorf("BytesRead: got %d, want %d", conn.BytesRead(), want)
	}

	done := make(chan error)
	go func() {
		_, _, err := wire.ReadMessage(remote, wire.MainNet)
		done <- err
	}()
	if err := conn.WriteMessage(wire.CmdAddr, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("remote ReadMessage: %v", err)
	}
	if conn.BytesWritten() != want {
		t.Errorf("BytesWritten: got %d, want %d", conn.BytesWritten(), want)
	}

	now := time.Now().Unix()
	if conn.LastWrite().Unix()>>3 != now>>3 {
		t.Errorf("Wrong time: got %d expected %d", conn.LastWrite().Unix(), now)
	}
	if conn.LastRead().Unix()>>3 != now>>3 {
		t.Errorf("Wrong time: got %d expected %d", conn.LastRead().Unix(), now)
	}
}

func TestChecksumMismatchCloses(t *testing.T) {
	mc, remote := NewMockConn(localAddr, remoteAddr, false)
	conn := peer.TstNewConnection(mc)

	var buf bytes.Buffer
	wire.WriteMessage(&buf, wire.CmdTx, []byte{9, 9, 9}, wire.MainNet)
	b := buf.Bytes()
	b[len(b)-1] ^= 0x01
	go remote.Write(b)

	_, _, err := conn.ReadMessage()
	if !errors.Is(err, wire.ErrChecksumMismatch) {
		t.Errorf("ReadMessage: got error %v, want %v", err,
			wire.ErrChecksumMismatch)
	}
	if conn.Connected() {
		t.Errorf("Connection still open after a corrupt message.")
	}
}

func TestLimiter(t *testing.T) {
	tests := []struct {
		rate  int64
		burst int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{65536, 65536},
	}

	for i, test := range tests {
		if got := peer.TstLimiterBurst(test.rate); got != test.burst {
			t.Errorf("%d: got burst %d, want %d", i, got, test.burst)
		}
	}
}
