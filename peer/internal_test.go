// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"net"
)

// TstNewConnection is used to create a new connection with a mock conn instead
// of a real one for testing purposes.
func TstNewConnection(conn net.Conn) Connection {
	return newConnectedConnection(conn, 0, 0)
}

// TstNewListener returns a new listener with a user defined net.Listener, which
// can be a mock object for testing purposes.
func TstNewListener(netListen net.Listener) Listener {
	return &listener{
		netListener: netListen,
	}
}

// TstSwapDial swaps out the dial function to mock it for testing
// purposes. It returns the original function so that it can be swapped back in
// at the end of the test.
func TstSwapDial(f func(string, string) (net.Conn, error)) func(string, string) (net.Conn, error) {
	g := dial
	SetDialer(f)
	return g
}

// TstSwapListen swaps out the listen function to mock it for testing
// purposes. It returns the original function so that it can be swapped back in
// at the end of the test.
func TstSwapListen(f func(string, string) (net.Listener, error)) func(string, string) (net.Listener, error) {
	g := listen
	listen = f
	return g
}

// TstLimiterBurst returns the burst of the limiter created for a rate of
// bytesPerSec, or zero when the rate is unlimited.
func TstLimiterBurst(bytesPerSec int64) int {
	l := newLimiter(bytesPerSec)
	if l == nil {
		return 0
	}
	return l.Burst()
}
