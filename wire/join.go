package wire

import (
	"io"
)

// joinMessage is the version message written to every peer as soon as the
// connection is up. It announces protocol 60002, a full node, the user agent
// /Satoshi:0.7.2/ and a start height of 212672 on MainNet.
var joinMessage = [...]byte{
	// Header: magic, "version", payload length 100, checksum.
	0xf9, 0xbe, 0xb4, 0xd9, 0x76, 0x65, 0x72, 0x73, 0x69, 0x6f, 0x6e, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x35, 0x8d, 0x49, 0x32,

	// Protocol version, services, timestamp.
	0x62, 0xea, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x11, 0xb2, 0xd0, 0x50, 0x00, 0x00, 0x00, 0x00,

	// Receiving address.
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00,

	// Sending address.
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00,

	// Nonce.
	0x3b, 0x2e, 0xb3, 0x5d, 0x8c, 0xe6, 0x17, 0x65,

	// User agent.
	0x0f, 0x2f, 0x53, 0x61, 0x74, 0x6f, 0x73, 0x68, 0x69, 0x3a, 0x30, 0x2e,
	0x37, 0x2e, 0x32, 0x2f,

	// Start height.
	0xc0, 0x3e, 0x03, 0x00,
}

// JoinMessageLen is the size of the join message.
const JoinMessageLen = len(joinMessage)

// JoinMessage returns a copy of the version message that opens every
// connection.
func JoinMessage() []byte {
	msg := make([]byte, JoinMessageLen)
	copy(msg, joinMessage[:])
	return msg
}

// WriteJoin writes the join message to w verbatim. A short write is an error.
func WriteJoin(w io.Writer) error {
	n, err := w.Write(joinMessage[:])
	if err != nil {
		return err
	}
	if n != JoinMessageLen {
		return io.ErrShortWrite
	}
	return nil
}
