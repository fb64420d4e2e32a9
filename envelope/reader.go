package envelope

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reader reads frames from an io.Reader.
type Reader struct {
	r          *bufio.Reader
	maxPayload int
	verifyCRC  bool
	offset     int64
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxPayload sets the maximum stored and uncompressed payload size
// (default: 64 MiB).
func WithMaxPayload(max int) ReaderOption {
	return func(r *Reader) {
		r.maxPayload = max
	}
}

// WithCRCVerification turns CRC checking on or off. It is on by default.
// Digests are always verified.
func WithCRCVerification(enabled bool) ReaderOption {
	return func(r *Reader) {
		r.verifyCRC = enabled
	}
}

// NewReader creates a frame reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		r:          bufio.NewReaderSize(r, MaxHeaderSize),
		maxPayload: MaxPayloadSize,
		verifyCRC:  true,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// header holds the parsed header fields before the payload is read.
type header struct {
	frame  *Frame
	stored int
	raw    int
	hasRaw bool
}

// Next reads and returns the next frame with its payload decompressed
// and verified. Returns io.EOF when no more frames are available.
func (r *Reader) Next() (*Frame, error) {
	start := r.offset
	raw, err := r.r.ReadSlice('\n')
	line := string(raw)
	r.offset += int64(len(line))
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, &ParseError{Reason: fmt.Sprintf("header exceeds %d bytes", MaxHeaderSize), Offset: int(start)}
		}
		if err == io.EOF && line == "" {
			return nil, io.EOF
		}
		if err == io.EOF {
			return nil, &ParseError{Reason: "truncated header", Offset: int(start)}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	h, err := parseHeader(line, int(start))
	if err != nil {
		return nil, err
	}
	f := h.frame

	if h.stored > r.maxPayload {
		return nil, &ParseError{Reason: fmt.Sprintf("payload too large: %d > %d", h.stored, r.maxPayload), Offset: int(start)}
	}
	if h.hasRaw && h.raw > r.maxPayload {
		return nil, &ParseError{Reason: fmt.Sprintf("uncompressed payload too large: %d > %d", h.raw, r.maxPayload), Offset: int(start)}
	}

	stored := make([]byte, h.stored)
	if _, err := io.ReadFull(r.r, stored); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &ParseError{Reason: "truncated payload", Offset: int(r.offset)}
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	r.offset += int64(h.stored)

	// Trailing newline is optional at EOF.
	if b, err := r.r.ReadByte(); err == nil {
		if b == '\n' {
			r.offset++
		} else {
			r.r.UnreadByte()
		}
	}

	if r.verifyCRC && f.CRC != nil {
		if computed := ComputeCRC(stored); computed != *f.CRC {
			return nil, &CRCMismatchError{Seq: f.Seq, Expected: *f.CRC, Got: computed}
		}
	}

	f.Payload, err = decompress(stored, f.Compression, h.raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: frame %d: %w", f.Seq, err)
	}

	if f.Digest != nil {
		if computed := ComputeDigest(f.Payload); computed != *f.Digest {
			return nil, &DigestMismatchError{Seq: f.Seq, Expected: *f.Digest, Got: computed}
		}
	}

	return f, nil
}

// parseHeader parses the @frame{...} header line. Unknown keys are
// ignored so newer writers stay readable.
func parseHeader(line string, offset int) (*header, error) {
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, "@frame{") {
		return nil, &ParseError{Reason: "expected @frame{", Offset: offset}
	}
	if !strings.HasSuffix(line, "}") {
		return nil, &ParseError{Reason: "missing closing }", Offset: offset + len(line)}
	}
	content := line[len("@frame{") : len(line)-1]

	h := &header{frame: &Frame{Version: Version}}
	f := h.frame
	var hasLen bool

	for _, pair := range strings.Fields(content) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &ParseError{Reason: "malformed field " + strconv.Quote(pair), Offset: offset}
		}

		switch key {
		case "v":
			v, err := strconv.ParseUint(val, 10, 8)
			if err != nil || uint8(v) != Version {
				return nil, &ParseError{Reason: "unsupported version " + val, Offset: offset}
			}
			f.Version = uint8(v)

		case "seq":
			seq, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, &ParseError{Reason: "invalid seq", Offset: offset}
			}
			f.Seq = seq

		case "len":
			l, err := strconv.ParseUint(val, 10, 31)
			if err != nil {
				return nil, &ParseError{Reason: "invalid len", Offset: offset}
			}
			h.stored = int(l)
			hasLen = true

		case "crc":
			crc, ok := parseCRC(val)
			if !ok {
				return nil, &ParseError{Reason: "invalid crc: " + val, Offset: offset}
			}
			f.CRC = &crc

		case "comp":
			c, err := ParseCompression(val)
			if err != nil {
				return nil, &ParseError{Reason: "invalid comp: " + val, Offset: offset}
			}
			f.Compression = c

		case "raw":
			raw, err := strconv.ParseUint(val, 10, 31)
			if err != nil {
				return nil, &ParseError{Reason: "invalid raw", Offset: offset}
			}
			h.raw = int(raw)
			h.hasRaw = true

		case "digest":
			hexDigest, ok := strings.CutPrefix(val, DigestPrefix)
			if !ok {
				return nil, &ParseError{Reason: "unsupported digest: " + val, Offset: offset}
			}
			d, ok := HexToDigest(hexDigest)
			if !ok {
				return nil, &ParseError{Reason: "invalid digest: " + val, Offset: offset}
			}
			f.Digest = &d

		case "final":
			f.Final = val == "true" || val == "1"
		}
	}

	if !hasLen {
		return nil, &ParseError{Reason: "missing len", Offset: offset}
	}
	if f.Compression != CompressionNone && !h.hasRaw {
		return nil, &ParseError{Reason: "comp without raw", Offset: offset}
	}
	if f.Compression == CompressionNone {
		h.raw = h.stored
	}
	f.StoredLen = h.stored
	return h, nil
}

// parseCRC parses "XXXXXXXX" or "crc32:XXXXXXXX".
func parseCRC(val string) (uint32, bool) {
	val = strings.TrimPrefix(val, "crc32:")
	if len(val) != 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(val, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// ReadAll reads all frames until EOF.
func (r *Reader) ReadAll() ([]*Frame, error) {
	var frames []*Frame
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}
