package wire

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// BlockHeaderLen is the number of bytes in a serialized block header. These
// bytes alone determine the identity of a block.
const BlockHeaderLen = 80

// BlockHeader defines information about a block.
type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version int32

	// Hash of the previous block in the block chain.
	PrevBlock Hash

	// Merkle tree reference to hash of all transactions for the block.
	MerkleRoot Hash

	// Time the block was created.  This is, unfortunately, encoded as a
	// uint32 on the wire and therefore is limited to 2106.
	Timestamp time.Time

	// Difficulty target for the block.
	Bits uint32

	// Nonce used to generate the block.
	Nonce uint32
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() Hash {
	var buf bytes.Buffer
	buf.Grow(BlockHeaderLen)
	h.Serialize(&buf)
	return DoubleHashH(buf.Bytes())
}

// Deserialize decodes a block header from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var sec uint32
	err := readElements(r, &h.Version, &h.PrevBlock, &h.MerkleRoot, &sec,
		&h.Bits, &h.Nonce)
	if err != nil {
		return err
	}
	h.Timestamp = time.Unix(int64(sec), 0)
	return nil
}

// Serialize encodes the block header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	sec := uint32(h.Timestamp.Unix())
	return writeElements(w, h.Version, &h.PrevBlock, &h.MerkleRoot, sec,
		h.Bits, h.Nonce)
}

// NewBlockHeaderFromPayload decodes the header at the start of a block
// message payload.
func NewBlockHeaderFromPayload(payload []byte) (*BlockHeader, error) {
	if len(payload) < BlockHeaderLen {
		return nil, truncatedError("NewBlockHeaderFromPayload", 0,
			BlockHeaderLen, len(payload))
	}

	h := &BlockHeader{}
	err := h.Deserialize(bytes.NewReader(payload[:BlockHeaderLen]))
	if err != nil {
		return nil, err
	}
	return h, nil
}

// BlockTransactions splits a block message payload into the serialized
// transactions that follow its header. The returned slices alias payload.
func BlockTransactions(payload []byte) ([][]byte, error) {
	const f = "BlockTransactions"

	if len(payload) < BlockHeaderLen {
		return nil, truncatedError(f, 0, BlockHeaderLen, len(payload))
	}
	off := BlockHeaderLen

	count, n, err := DecodeVarInt(payload[off:])
	if err != nil {
		return nil, truncatedError(f, off, 1, len(payload))
	}
	off += n

	// Every transaction is at least ten bytes, which bounds the allocation
	// for a forged count.
	if count > uint64(len(payload)-off)/10 {
		return nil, &MessageError{
			Func: f,
			Description: fmt.Sprintf("%d transactions cannot fit in "+
				"%d bytes", count, len(payload)-off),
			Err: ErrTruncated,
		}
	}

	txs := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		txLen, err := TransactionLength(payload[off:])
		if err != nil {
			return nil, err
		}
		txs = append(txs, payload[off:off+txLen])
		off += txLen
	}

	return txs, nil
}
