package envelope

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DigestPrefix tags the digest algorithm in the frame header.
const DigestPrefix = "blake3:"

// ComputeDigest returns the blake3-256 digest of data.
func ComputeDigest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// DigestToHex returns the lowercase hex form of a digest.
func DigestToHex(d [32]byte) string {
	return hex.EncodeToString(d[:])
}

// HexToDigest parses a 64-character hex digest.
func HexToDigest(s string) ([32]byte, bool) {
	var d [32]byte
	if len(s) != 64 {
		return d, false
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, false
	}
	return d, true
}
