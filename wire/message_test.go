package wire_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// TestMessage tests framing and reading messages.
func TestMessage(t *testing.T) {
	tests := []struct {
		command string
		payload []byte
		bnet    wire.BitcoinNet
	}{
		{wire.CmdVerAck, []byte{}, wire.MainNet},
		{wire.CmdTx, minimalTx, wire.MainNet},
		{wire.CmdBlock, genesisHeader, wire.TestNet3},
		{"getdata", []byte{0x00}, wire.MainNet},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		var buf bytes.Buffer
		nw, err := wire.WriteMessageN(&buf, test.command, test.payload,
			test.bnet)
		if err != nil {
			t.Errorf("WriteMessage #%d error %v", i, err)
			continue
		}
		if nw != wire.MessageHeaderSize+len(test.payload) {
			t.Errorf("WriteMessage #%d wrote %d bytes, want %d", i, nw,
				wire.MessageHeaderSize+len(test.payload))
		}

		nr, hdr, payload, err := wire.ReadMessageN(&buf, test.bnet)
		if err != nil {
			t.Errorf("ReadMessage #%d error %v", i, err)
			continue
		}
		if nr != nw {
			t.Errorf("ReadMessage #%d read %d bytes, want %d", i, nr, nw)
		}
		if hdr.Command != test.command || hdr.Net != test.bnet ||
			hdr.Length != uint32(len(test.payload)) {
			t.Errorf("ReadMessage #%d\n got: %s", i, spew.Sdump(hdr))
		}
		if !bytes.Equal(payload, test.payload) {
			t.Errorf("ReadMessage #%d\n got: %s want: %s", i,
				spew.Sdump(payload), spew.Sdump(test.payload))
		}
	}
}

// TestMessageErrors performs negative tests against reading and writing
// messages.
func TestMessageErrors(t *testing.T) {
	var good bytes.Buffer
	wire.WriteMessage(&good, wire.CmdTx, minimalTx, wire.MainNet)
	frame := good.Bytes()

	// Corrupt one payload byte.
	corrupt := append([]byte{}, frame...)
	corrupt[wire.MessageHeaderSize+5] ^= 0x01
	_, _, err := wire.ReadMessage(bytes.NewReader(corrupt), wire.MainNet)
	if !errors.Is(err, wire.ErrChecksumMismatch) {
		t.Errorf("ReadMessage: got %v, want %v", err,
			wire.ErrChecksumMismatch)
	}

	// Wrong network.
	_, _, err = wire.ReadMessage(bytes.NewReader(frame), wire.TestNet3)
	if !errors.Is(err, wire.ErrWrongNetwork) {
		t.Errorf("ReadMessage: got %v, want %v", err, wire.ErrWrongNetwork)
	}

	// Short header.
	_, _, err = wire.ReadMessage(bytes.NewReader(frame[:10]), wire.MainNet)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("ReadMessage: got %v, want %v", err, io.ErrUnexpectedEOF)
	}

	// Short payload.
	_, _, err = wire.ReadMessage(bytes.NewReader(frame[:len(frame)-1]),
		wire.MainNet)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("ReadMessage: got %v, want %v", err, io.ErrUnexpectedEOF)
	}

	// Oversized length.
	oversized := append([]byte{}, frame[:wire.MessageHeaderSize]...)
	oversized[16], oversized[17], oversized[18], oversized[19] = 0xff, 0xff,
		0xff, 0xff
	_, _, err = wire.ReadMessage(bytes.NewReader(oversized), wire.MainNet)
	if _, ok := err.(*wire.MessageError); !ok {
		t.Errorf("ReadMessage: expected MessageError, got %v", err)
	}

	// Command too long.
	err = wire.WriteMessage(&bytes.Buffer{}, "thirteenchars", nil,
		wire.MainNet)
	if _, ok := err.(*wire.MessageError); !ok {
		t.Errorf("WriteMessage: expected MessageError, got %v", err)
	}
}
