// Copyright (c) 2015 Monetas.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"testing"

	"github.com/prodigeni/bitcoin-broadcast/wire"
)

func TestMessageSummary(t *testing.T) {
	block, hash := testBlock(wire.Hash{}, 1)
	join := wire.JoinMessage()[wire.MessageHeaderSize:]
	agent, err := wire.VersionUserAgent(join)
	if err != nil {
		t.Fatalf("VersionUserAgent failed: %v", err)
	}
	height, _ := wire.VersionStartHeight(join)

	tests := []struct {
		command string
		payload []byte
		want    string
	}{
		{wire.CmdBlock, block, fmt.Sprintf("hash %s, time 2009-01-03 18:15:05", hash)},
		{wire.CmdBlock, block[:10], "truncated"},
		{wire.CmdTx, testTx(1), "60 bytes"},
		{wire.CmdTx, []byte{0x01}, "truncated"},
		{wire.CmdInv, []byte{0x01}, "1 item"},
		{wire.CmdInv, []byte{0x03}, "3 items"},
		{wire.CmdInv, nil, "truncated"},
		{wire.CmdAddr, []byte{0x02}, "2 addr"},
		{wire.CmdVersion, join, fmt.Sprintf("agent %s, height %d", agent, height)},
		{wire.CmdVersion, join[:20], "truncated"},
		{wire.CmdVerAck, nil, ""},
		{"getdata", []byte{0x01}, ""},
	}

	for _, test := range tests {
		if got := messageSummary(test.command, test.payload); got != test.want {
			t.Errorf("%s of %d bytes: got %q, want %q", test.command,
				len(test.payload), got, test.want)
		}
	}
}

func TestDirectionString(t *testing.T) {
	if s := directionString(true); s != "inbound" {
		t.Errorf("got %q for inbound", s)
	}
	if s := directionString(false); s != "outbound" {
		t.Errorf("got %q for outbound", s)
	}
}
