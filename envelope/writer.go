package envelope

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Writer writes frames to an io.Writer. Sequence numbers start at 1 and
// increase by one per frame. A Writer is safe for concurrent use; frames
// are never interleaved.
type Writer struct {
	mu          sync.Mutex
	w           io.Writer
	seq         uint64
	withCRC     bool
	withDigest  bool
	compression Compression
	closed      bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCRC adds a CRC-32 of the stored bytes to every frame.
func WithCRC() WriterOption {
	return func(w *Writer) {
		w.withCRC = true
	}
}

// WithDigest adds a blake3 digest of the uncompressed payload to every frame.
func WithDigest() WriterOption {
	return func(w *Writer) {
		w.withDigest = true
	}
}

// WithCompression compresses payloads. Payloads that do not shrink are
// stored uncompressed.
func WithCompression(c Compression) WriterOption {
	return func(w *Writer) {
		w.compression = c
	}
}

// NewWriter creates a frame writer.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{w: w}
	for _, opt := range opts {
		opt(writer)
	}
	return writer
}

// ErrWriterClosed is returned after the final frame has been written.
var ErrWriterClosed = errors.New("envelope: writer already wrote the final frame")

// Write frames one document.
func (w *Writer) Write(payload []byte) error {
	return w.write(payload, false)
}

// WriteFinal frames the last document of the stream.
func (w *Writer) WriteFinal(payload []byte) error {
	return w.write(payload, true)
}

// Seq returns the sequence number of the last frame written.
func (w *Writer) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

func (w *Writer) write(payload []byte, final bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("envelope: payload too large: %d > %d", len(payload), MaxPayloadSize)
	}

	f := &Frame{
		Version: Version,
		Seq:     w.seq + 1,
		Payload: payload,
		Final:   final,
	}
	stored := payload
	if w.compression != CompressionNone && len(payload) > 0 {
		out, err := compress(payload, w.compression)
		switch {
		case err == nil:
			stored = out
			f.Compression = w.compression
		case !errors.Is(err, errIncompressible):
			return err
		}
	}
	f.StoredLen = len(stored)
	if w.withCRC {
		crc := ComputeCRC(stored)
		f.CRC = &crc
	}
	if w.withDigest {
		d := ComputeDigest(payload)
		f.Digest = &d
	}

	header := formatHeader(f)
	buf := make([]byte, 0, len(header)+len(stored)+1)
	buf = append(buf, header...)
	buf = append(buf, stored...)
	buf = append(buf, '\n')
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	w.seq = f.Seq
	w.closed = final
	return nil
}

func formatHeader(f *Frame) string {
	var header strings.Builder
	header.WriteString("@frame{v=")
	header.WriteString(strconv.Itoa(int(f.Version)))

	header.WriteString(" seq=")
	header.WriteString(strconv.FormatUint(f.Seq, 10))

	header.WriteString(" len=")
	header.WriteString(strconv.Itoa(f.StoredLen))

	if f.CRC != nil {
		header.WriteString(" crc=")
		header.WriteString(fmt.Sprintf("%08x", *f.CRC))
	}

	if f.Compression != CompressionNone {
		header.WriteString(" comp=")
		header.WriteString(f.Compression.String())
		header.WriteString(" raw=")
		header.WriteString(strconv.Itoa(len(f.Payload)))
	}

	if f.Digest != nil {
		header.WriteString(" digest=")
		header.WriteString(DigestPrefix)
		header.WriteString(DigestToHex(*f.Digest))
	}

	if f.Final {
		header.WriteString(" final=true")
	}

	header.WriteString("}\n")
	return header.String()
}
