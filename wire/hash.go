package wire

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/minio/sha256-simd"
)

// HashSize is the size of the array used to store double SHA-256 hashes.
const HashSize = 32

// HashStringSize is the length of a Hash rendered as a string.
const HashStringSize = HashSize * 2

// ErrHashStrSize describes an error that indicates the caller specified a hash
// string that does not have the right number of characters.
var ErrHashStrSize = fmt.Errorf("string length must be %v chars", HashStringSize)

// Hash is the double SHA-256 of the identity bytes of an object. It is the
// only key under which objects are stored and relayed.
type Hash [HashSize]byte

// String returns the Hash as the hexadecimal string of the byte-reversed
// hash. A new string is allocated on every call.
func (hash Hash) String() string {
	for i := 0; i < HashSize/2; i++ {
		hash[i], hash[HashSize-1-i] = hash[HashSize-1-i], hash[i]
	}
	return hex.EncodeToString(hash[:])
}

// Bytes returns the bytes which represent the hash as a byte slice.
func (hash *Hash) Bytes() []byte {
	newHash := make([]byte, HashSize)
	copy(newHash, hash[:])

	return newHash
}

// SetBytes sets the bytes which represent the hash.  An error is returned if
// the number of bytes passed in is not HashSize.
func (hash *Hash) SetBytes(newHash []byte) error {
	nhlen := len(newHash)
	if nhlen != HashSize {
		return fmt.Errorf("invalid sha length of %v, want %v", nhlen,
			HashSize)
	}
	copy(hash[:], newHash)

	return nil
}

// IsEqual returns true if target is the same as hash.
func (hash *Hash) IsEqual(target *Hash) bool {
	return bytes.Equal(hash[:], target[:])
}

// NewHash returns a new Hash from a byte slice.  An error is returned if
// the number of bytes passed in is not HashSize.
func NewHash(newHash []byte) (*Hash, error) {
	var sh Hash
	err := sh.SetBytes(newHash)
	if err != nil {
		return nil, err
	}
	return &sh, err
}

// NewHashFromStr creates a Hash from a hash string.  The string should be
// the hexadecimal string of a byte-reversed hash, as produced by String.
func NewHashFromStr(hash string) (*Hash, error) {
	// Return error if hash string is not the right size.
	if len(hash) != HashStringSize {
		return nil, ErrHashStrSize
	}

	// Convert string hash to bytes.
	buf, err := hex.DecodeString(hash)
	if err != nil {
		return nil, err
	}

	// Un-reverse the decoded bytes.
	for i := 0; i < HashSize/2; i++ {
		buf[i], buf[HashSize-1-i] = buf[HashSize-1-i], buf[i]
	}

	return NewHash(buf)
}

// DoubleHashB calculates sha256(sha256(b)) and returns the resulting bytes.
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH calculates sha256(sha256(b)) and returns the resulting bytes
// as a Hash.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}

// Checksum returns the first four bytes of the double hash of payload, as
// carried in a message header.
func Checksum(payload []byte) [4]byte {
	var sum [4]byte
	copy(sum[:], DoubleHashB(payload))
	return sum
}
