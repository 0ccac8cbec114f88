package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MaxVarIntPayload is the maximum payload size for a variable length integer.
const MaxVarIntPayload = 9

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	var scratch [8]byte

	// Attempt to read the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case *int32:
		b := scratch[0:4]
		_, err := io.ReadFull(r, b)
		if err != nil {
			return err
		}
		*e = int32(binary.LittleEndian.Uint32(b))
		return nil

	case *uint32:
		b := scratch[0:4]
		_, err := io.ReadFull(r, b)
		if err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint32(b)
		return nil

	case *uint64:
		b := scratch[0:8]
		_, err := io.ReadFull(r, b)
		if err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint64(b)
		return nil

	case *bool:
		b := scratch[0:1]
		_, err := io.ReadFull(r, b)
		if err != nil {
			return err
		}
		*e = b[0] != 0x00
		return nil

	// Message header checksum.
	case *[4]byte:
		_, err := io.ReadFull(r, e[:])
		return err

	// Message header command.
	case *[CommandSize]uint8:
		_, err := io.ReadFull(r, e[:])
		return err

	case *Hash:
		_, err := io.ReadFull(r, e[:])
		return err

	case *BitcoinNet:
		b := scratch[0:4]
		_, err := io.ReadFull(r, b)
		if err != nil {
			return err
		}
		*e = BitcoinNet(binary.LittleEndian.Uint32(b))
		return nil
	}

	// Fall back to the slower binary.Read if a fast path was not available
	// above.
	return binary.Read(r, binary.LittleEndian, element)
}

// readElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	var scratch [8]byte

	switch e := element.(type) {
	case int32:
		b := scratch[0:4]
		binary.LittleEndian.PutUint32(b, uint32(e))
		_, err := w.Write(b)
		return err

	case uint32:
		b := scratch[0:4]
		binary.LittleEndian.PutUint32(b, e)
		_, err := w.Write(b)
		return err

	case uint64:
		b := scratch[0:8]
		binary.LittleEndian.PutUint64(b, e)
		_, err := w.Write(b)
		return err

	case bool:
		b := scratch[0:1]
		if e {
			b[0] = 0x01
		}
		_, err := w.Write(b)
		return err

	case [4]byte:
		_, err := w.Write(e[:])
		return err

	case [CommandSize]uint8:
		_, err := w.Write(e[:])
		return err

	case *Hash:
		_, err := w.Write(e[:])
		return err

	case BitcoinNet:
		b := scratch[0:4]
		binary.LittleEndian.PutUint32(b, uint32(e))
		_, err := w.Write(b)
		return err
	}

	return binary.Write(w, binary.LittleEndian, element)
}

// writeElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadVarInt reads a variable length integer from r and returns it as a uint64.
func ReadVarInt(r io.Reader) (uint64, error) {
	var b [8]byte
	_, err := io.ReadFull(r, b[0:1])
	if err != nil {
		return 0, err
	}

	var rv uint64
	discriminant := uint8(b[0])
	switch discriminant {
	case 0xff:
		_, err := io.ReadFull(r, b[:])
		if err != nil {
			return 0, err
		}
		rv = binary.LittleEndian.Uint64(b[:])

	case 0xfe:
		_, err := io.ReadFull(r, b[0:4])
		if err != nil {
			return 0, err
		}
		rv = uint64(binary.LittleEndian.Uint32(b[:]))

	case 0xfd:
		_, err := io.ReadFull(r, b[0:2])
		if err != nil {
			return 0, err
		}
		rv = uint64(binary.LittleEndian.Uint16(b[:]))

	default:
		rv = uint64(discriminant)
	}

	return rv, nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, val uint64) error {
	var buf [MaxVarIntPayload]byte
	n := PutVarInt(buf[:], val)
	_, err := w.Write(buf[:n])
	return err
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	// The value is small enough to be represented by itself, so it's
	// just 1 byte.
	if val < 0xfd {
		return 1
	}

	// Discriminant 1 byte plus 2 bytes for the uint16.
	if val <= math.MaxUint16 {
		return 3
	}

	// Discriminant 1 byte plus 4 bytes for the uint32.
	if val <= math.MaxUint32 {
		return 5
	}

	// Discriminant 1 byte plus 8 bytes for the uint64.
	return 9
}

// PutVarInt encodes val into buf and returns the number of bytes written.
// buf must hold at least VarIntSerializeSize(val) bytes.
func PutVarInt(buf []byte, val uint64) int {
	switch VarIntSerializeSize(val) {
	case 1:
		buf[0] = uint8(val)
		return 1
	case 3:
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(val))
		return 3
	case 5:
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(val))
		return 5
	}

	buf[0] = 0xff
	binary.LittleEndian.PutUint64(buf[1:], val)
	return 9
}

// DecodeVarInt decodes the variable length integer at the start of buf. It
// returns the value and the number of bytes it occupied. A buffer too short
// for the width announced by the discriminant yields a MessageError wrapping
// ErrTruncated.
func DecodeVarInt(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, truncatedError("DecodeVarInt", 0, 1, len(buf))
	}

	var size int
	switch buf[0] {
	case 0xff:
		size = 9
	case 0xfe:
		size = 5
	case 0xfd:
		size = 3
	default:
		return uint64(buf[0]), 1, nil
	}

	if len(buf) < size {
		return 0, 0, truncatedError("DecodeVarInt", 0, size, len(buf))
	}

	switch size {
	case 3:
		return uint64(binary.LittleEndian.Uint16(buf[1:])), 3, nil
	case 5:
		return uint64(binary.LittleEndian.Uint32(buf[1:])), 5, nil
	}
	return binary.LittleEndian.Uint64(buf[1:]), 9, nil
}

// readVarBytes reads a variable length byte array.  A byte array is encoded
// as a varInt containing the length of the array followed by the bytes
// themselves.  An error is returned if the length is greater than the
// passed maxAllowed parameter which helps protect against memory exhuastion
// attacks and forced panics thorugh malformed messages.  The fieldName
// parameter is only used for the error message so it provides more context in
// the error.
func readVarBytes(r io.Reader, maxAllowed uint32,
	fieldName string) ([]byte, error) {

	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	// Prevent byte array larger than the max message size.  It would
	// be possible to cause memory exhaustion and panics without a sane
	// upper bound on this count.
	if count > uint64(maxAllowed) {
		str := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
		return nil, messageError("readVarBytes", str)
	}

	b := make([]byte, count)
	_, err = io.ReadFull(r, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// writeVarBytes serializes a variable length byte array to w as a varInt
// containing the number of bytes, followed by the bytes themselves.
func writeVarBytes(w io.Writer, bytes []byte) error {
	err := WriteVarInt(w, uint64(len(bytes)))
	if err != nil {
		return err
	}

	_, err = w.Write(bytes)
	return err
}

// skipVarBytes returns the offset just past the variable length byte array
// that starts at off in buf.
func skipVarBytes(f string, buf []byte, off int) (int, error) {
	count, n, err := DecodeVarInt(buf[off:])
	if err != nil {
		return 0, truncatedError(f, off, 1, len(buf))
	}
	off += n
	if count > uint64(len(buf)-off) {
		return 0, truncatedError(f, off, int(count), len(buf))
	}
	return off + int(count), nil
}
