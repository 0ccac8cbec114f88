package wire

const (
	// outPointLen is the size of a previous output reference in a
	// transaction input: hash 32 bytes + index 4 bytes.
	outPointLen = HashSize + 4

	// sequenceLen is the size of an input sequence number.
	sequenceLen = 4

	// valueLen is the size of an output value.
	valueLen = 8

	// txVersionLen is the size of the transaction version.
	txVersionLen = 4

	// lockTimeLen is the size of the transaction lock time.
	lockTimeLen = 4
)

// TransactionLength returns the number of bytes occupied by the serialized
// transaction at the start of buf. Only the record boundaries are walked;
// nothing inside the transaction is validated. A buffer that ends inside the
// transaction yields a MessageError wrapping ErrTruncated.
func TransactionLength(buf []byte) (int, error) {
	const f = "TransactionLength"

	off := txVersionLen
	if off > len(buf) {
		return 0, truncatedError(f, 0, txVersionLen, len(buf))
	}

	inputs, n, err := DecodeVarInt(buf[off:])
	if err != nil {
		return 0, truncatedError(f, off, 1, len(buf))
	}
	off += n

	for i := uint64(0); i < inputs; i++ {
		if outPointLen > len(buf)-off {
			return 0, truncatedError(f, off, outPointLen, len(buf))
		}
		off += outPointLen

		off, err = skipVarBytes(f, buf, off)
		if err != nil {
			return 0, err
		}

		if sequenceLen > len(buf)-off {
			return 0, truncatedError(f, off, sequenceLen, len(buf))
		}
		off += sequenceLen
	}

	outputs, n, err := DecodeVarInt(buf[off:])
	if err != nil {
		return 0, truncatedError(f, off, 1, len(buf))
	}
	off += n

	for i := uint64(0); i < outputs; i++ {
		if valueLen > len(buf)-off {
			return 0, truncatedError(f, off, valueLen, len(buf))
		}
		off += valueLen

		off, err = skipVarBytes(f, buf, off)
		if err != nil {
			return 0, err
		}
	}

	if lockTimeLen > len(buf)-off {
		return 0, truncatedError(f, off, lockTimeLen, len(buf))
	}
	return off + lockTimeLen, nil
}
