// Originally derived from: btcsuite/btcd/peer.go
// Copyright (c) 2013-2015 Conformal Systems LLC.

// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net"

	"github.com/prodigeni/bitcoin-broadcast/peer"
)

// Can be swapped out for testing purposes.
var newConn = peer.NewConnection

// newInboundPeer returns a new inbound peer for the provided server and
// connection. Use Start to begin processing incoming and outgoing messages.
func newInboundPeer(s *server, conn peer.Connection) *serverPeer {
	return &serverPeer{
		Peer: peer.NewPeer(s, conn, true, false),
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
}

// newOutboundPeer returns a new outbound peer for the provided server and
// address. The server connects it asynchronously, after a delay that grows
// with retries.
func newOutboundPeer(s *server, addr string, persistent bool, retries int) (*serverPeer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	conn := newConn(tcpAddr, cfg.MaxDown, cfg.MaxUp)
	return &serverPeer{
		Peer:    peer.NewPeer(s, conn, false, persistent),
		conn:    conn,
		addr:    addr,
		retries: retries,
	}, nil
}
