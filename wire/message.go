package wire

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

// MessageHeaderSize is the number of bytes in a bitcoin message header.
// Bitcoin network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 32 // 32MB

// MessageHeader defines the header structure for all bitcoin protocol messages.
type MessageHeader struct {
	Net      BitcoinNet // 4 bytes
	Command  string     // 12 bytes
	Length   uint32     // 4 bytes
	Checksum [4]byte    // 4 bytes
}

// readMessageHeader reads a bitcoin message header from r.
func readMessageHeader(r io.Reader) (int, *MessageHeader, error) {
	// Since readElements doesn't return the amount of bytes read, attempt
	// to read the entire header into a buffer first in case there is a
	// short read so the proper amount of read bytes are known.  This works
	// since the header is a fixed size.
	var headerBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}
	hr := bytes.NewReader(headerBytes[:])

	// Create and populate a MessageHeader struct from the raw header bytes.
	hdr := MessageHeader{}
	var command [CommandSize]byte
	readElements(hr, &hdr.Net, &command, &hdr.Length, &hdr.Checksum)

	// Strip trailing zeros from command string.
	hdr.Command = string(bytes.TrimRight(command[:], "\x00"))

	return n, &hdr, nil
}

// discardInput reads n bytes from reader r in chunks and discards the read
// bytes.  This is used to skip payloads when various errors occur and helps
// prevent rogue nodes from causing massive memory allocation through forging
// header length.
func discardInput(r io.Reader, n uint32) {
	maxSize := uint32(10 * 1024) // 10k at a time
	numReads := n / maxSize
	bytesRemaining := n % maxSize
	if n > 0 {
		buf := make([]byte, maxSize)
		for i := uint32(0); i < numReads; i++ {
			io.ReadFull(r, buf)
		}
	}
	if bytesRemaining > 0 {
		buf := make([]byte, bytesRemaining)
		io.ReadFull(r, buf)
	}
}

// WriteMessageN frames payload under command for the given network and writes
// it to w. It returns the number of bytes written.
func WriteMessageN(w io.Writer, command string, payload []byte, bnet BitcoinNet) (int, error) {
	totalBytes := 0

	// Enforce max command size.
	var cmd [CommandSize]byte
	if len(command) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]",
			command, CommandSize)
		return totalBytes, messageError("WriteMessage", str)
	}
	copy(cmd[:], []byte(command))

	lenp := len(payload)
	if lenp > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
		return totalBytes, messageError("WriteMessage", str)
	}

	// Encode the header for the message.  This is done to a buffer
	// rather than directly to the writer since writeElements doesn't
	// return the number of bytes written.
	hw := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize))
	writeElements(hw, bnet, cmd, uint32(lenp), Checksum(payload))

	// Write header.
	n, err := w.Write(hw.Bytes())
	totalBytes += n
	if err != nil {
		return totalBytes, err
	}

	if lenp == 0 {
		return totalBytes, nil
	}

	// Write payload.
	n, err = w.Write(payload)
	totalBytes += n
	return totalBytes, err
}

// WriteMessage frames payload under command for the given network and writes
// it to w.
func WriteMessage(w io.Writer, command string, payload []byte, bnet BitcoinNet) error {
	_, err := WriteMessageN(w, command, payload, bnet)
	return err
}

// ReadMessageN reads, validates, and returns the next bitcoin message header
// and its raw payload from r for the provided bitcoin network. It returns the
// number of bytes read in addition to the header, payload and error.
//
// The payload is not interpreted; classification and hashing happen above
// this layer.
func ReadMessageN(r io.Reader, bnet BitcoinNet) (int, *MessageHeader, []byte, error) {
	totalBytes := 0
	n, hdr, err := readMessageHeader(r)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Enforce maximum message payload.
	if hdr.Length > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes.", hdr.Length, MaxMessagePayload)
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Check for messages from the wrong bitcoin network.
	if hdr.Net != bnet {
		discardInput(r, hdr.Length)
		str := fmt.Sprintf("message from other network [%v]", hdr.Net)
		return totalBytes, nil, nil, &MessageError{
			Func:        "ReadMessage",
			Description: str,
			Err:         ErrWrongNetwork,
		}
	}

	// Check for malformed commands.
	if !utf8.ValidString(hdr.Command) {
		discardInput(r, hdr.Length)
		str := fmt.Sprintf("invalid command %v", []byte(hdr.Command))
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Read payload.
	payload := make([]byte, hdr.Length)
	n, err = io.ReadFull(r, payload)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Test checksum.
	checksum := Checksum(payload)
	if !bytes.Equal(checksum[:], hdr.Checksum[:]) {
		str := fmt.Sprintf("payload checksum failed - header "+
			"indicates %v, but actual checksum is %v.",
			hdr.Checksum, checksum)
		return totalBytes, nil, nil, &MessageError{
			Func:        "ReadMessage",
			Description: str,
			Err:         ErrChecksumMismatch,
		}
	}

	return totalBytes, hdr, payload, nil
}

// ReadMessage reads, validates, and returns the next bitcoin message header
// and raw payload from r for the provided bitcoin network.
func ReadMessage(r io.Reader, bnet BitcoinNet) (*MessageHeader, []byte, error) {
	_, hdr, payload, err := ReadMessageN(r, bnet)
	return hdr, payload, err
}
