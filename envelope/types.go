// Package envelope frames serialized documents for transport and storage.
//
// Each frame carries exactly one complete document:
//
//	@frame{v=1 seq=N len=N [crc=XXXXXXXX] [comp=zstd|lz4 raw=N] [digest=blake3:HEX] [final=true]}\n
//	<payload bytes>\n
//
// The header is plain text so frames can be inspected and resynced by
// line. len counts the stored bytes, which are compressed when comp is
// set. crc covers the stored bytes; digest covers the uncompressed
// document. The payload is passed to the codec unchanged.
package envelope

import (
	"fmt"
)

// Version is the frame protocol version.
const Version uint8 = 1

// MaxHeaderSize bounds a header line, newline included.
const MaxHeaderSize = 4096

// MaxPayloadSize is the default maximum payload size (64 MiB).
// It bounds both the stored and the uncompressed length.
const MaxPayloadSize = 64 * 1024 * 1024

// Frame is a single decoded frame.
type Frame struct {
	Version uint8
	Seq     uint64
	Payload []byte // uncompressed document bytes

	// Set by the reader from the header; ignored by the writer, which
	// derives them from its options.
	CRC         *uint32
	Compression Compression
	StoredLen   int
	Digest      *[32]byte

	Final bool
}

// HasCRC returns true if the frame carried a CRC.
func (f *Frame) HasCRC() bool {
	return f.CRC != nil
}

// HasDigest returns true if the frame carried a content digest.
func (f *Frame) HasDigest() bool {
	return f.Digest != nil
}

// ParseError reports a malformed frame header or body.
type ParseError struct {
	Reason string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("envelope: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("envelope: %s", e.Reason)
}

// CRCMismatchError is returned when CRC verification fails.
type CRCMismatchError struct {
	Seq      uint64
	Expected uint32
	Got      uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("envelope: frame %d: CRC mismatch: expected %08x, got %08x", e.Seq, e.Expected, e.Got)
}

// DigestMismatchError is returned when the uncompressed payload does not
// hash to the digest in the header.
type DigestMismatchError struct {
	Seq      uint64
	Expected [32]byte
	Got      [32]byte
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("envelope: frame %d: digest mismatch: expected %s, got %s",
		e.Seq, DigestToHex(e.Expected), DigestToHex(e.Got))
}

// SequenceError is returned by a Tracker when frames arrive out of order
// or after the final frame.
type SequenceError struct {
	Expected uint64
	Got      uint64
	Reason   string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("envelope: %s: expected seq %d, got %d", e.Reason, e.Expected, e.Got)
}
