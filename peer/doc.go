// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peer provides objects for managing a connection to a remote peer that
speaks the bitcoin wire protocol.

Connection abstracts a tcp connection to a remote bitcoin node so that the
rest of the peer deals in framed messages rather than byte streams. It counts
the bytes moved in each direction and throttles them to the configured rate.

Listener listens for incoming tcp connections and creates Connection objects
for them when a connection is opened.

Peer writes the join message as soon as it starts, answers the version, ping
and verack messages of the handshake itself and hands every other message to
its Logic. A write loop drains whatever the Logic says should go to the peer
next, until the Logic reports that nothing is left, and then sleeps until it
is woken.
*/
package peer
