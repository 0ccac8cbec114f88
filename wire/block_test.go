package wire_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prodigeni/bitcoin-broadcast/wire"
)

// genesisHeader is the serialized header of the main network genesis block.
var genesisHeader, _ = hex.DecodeString("01000000000000000000000000000000" +
	"00000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e6776" +
	"8f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c")

// TestBlockHeader tests decoding a block header and computing its hash.
func TestBlockHeader(t *testing.T) {
	if len(genesisHeader) != wire.BlockHeaderLen {
		t.Fatalf("genesis header is %d bytes", len(genesisHeader))
	}

	h, err := wire.NewBlockHeaderFromPayload(genesisHeader)
	if err != nil {
		t.Fatalf("NewBlockHeaderFromPayload: %v", err)
	}

	merkle, _ := wire.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f" +
		"76673e2cc77ab2127b7afdeda33b")
	want := &wire.BlockHeader{
		Version:    1,
		MerkleRoot: *merkle,
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}
	if h.Version != want.Version || h.PrevBlock != want.PrevBlock ||
		h.MerkleRoot != want.MerkleRoot || !h.Timestamp.Equal(want.Timestamp) ||
		h.Bits != want.Bits || h.Nonce != want.Nonce {
		t.Errorf("NewBlockHeaderFromPayload\n got: %s want: %s",
			spew.Sdump(h), spew.Sdump(want))
	}

	wantHash := "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	if hash := h.BlockHash(); hash.String() != wantHash {
		t.Errorf("BlockHash: got %v, want %v", hash, wantHash)
	}

	var buf bytes.Buffer
	if err := h.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), genesisHeader) {
		t.Errorf("Serialize\n got: %s want: %s", spew.Sdump(buf.Bytes()),
			spew.Sdump(genesisHeader))
	}

	_, err = wire.NewBlockHeaderFromPayload(genesisHeader[:79])
	if !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("NewBlockHeaderFromPayload: got %v, want %v", err,
			wire.ErrTruncated)
	}
}

// TestBlockTransactions tests splitting a block payload into transactions.
func TestBlockTransactions(t *testing.T) {
	payload := append([]byte{}, genesisHeader...)
	payload = append(payload, 0x02)
	payload = append(payload, minimalTx...)
	payload = append(payload, scriptTx...)

	txs, err := wire.BlockTransactions(payload)
	if err != nil {
		t.Fatalf("BlockTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("BlockTransactions: got %d transactions, want 2", len(txs))
	}
	if !bytes.Equal(txs[0], minimalTx) || !bytes.Equal(txs[1], scriptTx) {
		t.Errorf("BlockTransactions: wrong split\n got: %s",
			spew.Sdump(txs))
	}

	// A header-only block with no transaction count.
	_, err = wire.BlockTransactions(genesisHeader)
	if !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("BlockTransactions: got %v, want %v", err,
			wire.ErrTruncated)
	}

	// A transaction count that cannot fit.
	forged := append(append([]byte{}, genesisHeader...), 0xfe, 0xff, 0xff,
		0xff, 0x7f)
	_, err = wire.BlockTransactions(forged)
	if !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("BlockTransactions: got %v, want %v", err,
			wire.ErrTruncated)
	}

	// Last transaction cut short.
	_, err = wire.BlockTransactions(payload[:len(payload)-1])
	if !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("BlockTransactions: got %v, want %v", err,
			wire.ErrTruncated)
	}

	// An empty block.
	txs, err = wire.BlockTransactions(append(append([]byte{},
		genesisHeader...), 0x00))
	if err != nil || len(txs) != 0 {
		t.Errorf("BlockTransactions: got (%v, %v), want no transactions",
			txs, err)
	}
}
