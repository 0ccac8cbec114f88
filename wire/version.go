package wire

import (
	"encoding/binary"
)

// versionFixedLen is the size of the fixed fields that precede the user agent
// in a version payload: protocol version 4, services 8, timestamp 8, receiving
// address 26, sending address 26, nonce 8.
const versionFixedLen = 4 + 8 + 8 + 26 + 26 + 8

// VersionUserAgent returns the user agent announced by a version payload.
func VersionUserAgent(payload []byte) (string, error) {
	const f = "VersionUserAgent"

	if len(payload) < versionFixedLen {
		return "", truncatedError(f, 0, versionFixedLen, len(payload))
	}
	end, err := skipVarBytes(f, payload, versionFixedLen)
	if err != nil {
		return "", err
	}
	_, n, _ := DecodeVarInt(payload[versionFixedLen:])
	return string(payload[versionFixedLen+n : end]), nil
}

// VersionStartHeight returns the best block height announced by a version
// payload.
func VersionStartHeight(payload []byte) (int32, error) {
	const f = "VersionStartHeight"

	if len(payload) < versionFixedLen {
		return 0, truncatedError(f, 0, versionFixedLen, len(payload))
	}
	off, err := skipVarBytes(f, payload, versionFixedLen)
	if err != nil {
		return 0, err
	}
	if len(payload)-off < 4 {
		return 0, truncatedError(f, off, 4, len(payload))
	}
	return int32(binary.LittleEndian.Uint32(payload[off:])), nil
}
