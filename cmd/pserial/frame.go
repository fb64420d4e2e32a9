package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/Neumenon/pserial/envelope"
	"github.com/Neumenon/pserial/pserial"
)

func frameFlags(fs *pflag.FlagSet) {
	fs.String("compress", "", "payload compression: zstd or lz4")
	fs.Bool("digest", false, "add a blake3 digest of each payload")
	fs.Bool("no-crc", false, "omit the CRC-32 of each payload")
}

// cmdFrame validates each input document and writes it as one frame.
// The last frame is marked final.
func cmdFrame(e *env, fs *pflag.FlagSet) error {
	cfg := *e.cfg
	if fs.Changed("compress") {
		cfg.Envelope.Compression, _ = fs.GetString("compress")
	}
	if digest, _ := fs.GetBool("digest"); digest {
		cfg.Envelope.Digest = true
	}
	if noCRC, _ := fs.GetBool("no-crc"); noCRC {
		cfg.Envelope.CRC = false
	}
	opts, err := cfg.WriterOptions()
	if err != nil {
		return usagef("--compress: %v", err)
	}

	codec, err := e.codec()
	if err != nil {
		return err
	}

	type doc struct {
		name string
		data []byte
	}
	var docs []doc
	if args := fs.Args(); len(args) == 0 {
		data, err := io.ReadAll(e.stdin)
		if err != nil {
			return err
		}
		docs = append(docs, doc{"<stdin>", data})
	} else {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			docs = append(docs, doc{path, data})
		}
	}

	w := envelope.NewWriter(e.stdout, opts...)
	for i, d := range docs {
		if _, err := codec.DecodeBytes(d.data); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if i == len(docs)-1 {
			err = w.WriteFinal(d.data)
		} else {
			err = w.Write(d.data)
		}
		if err != nil {
			return err
		}
		e.logger.Debug("framed", "input", d.name, "seq", w.Seq(), "bytes", len(d.data))
	}
	return nil
}

func unframeFlags(fs *pflag.FlagSet) {
	fs.Bool("dump", false, "print each document as a var_dump-style tree")
}

// cmdUnframe reads frames, verifies checksums and ordering, decodes each
// payload and prints it one per line.
func cmdUnframe(e *env, fs *pflag.FlagSet) error {
	codec, err := e.codec()
	if err != nil {
		return err
	}
	data, name, err := e.input(fs)
	if err != nil {
		return err
	}
	dump, _ := fs.GetBool("dump")

	r := envelope.NewReader(bytes.NewReader(data), e.cfg.ReaderOptions()...)
	tracker := envelope.NewTracker()
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := tracker.Process(f); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		v, err := envelope.DecodeValue(f, codec)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		e.logger.Debug("frame",
			"seq", f.Seq,
			"stored", f.StoredLen,
			"bytes", len(f.Payload),
			"compression", f.Compression.String(),
			"final", f.Final,
		)

		if dump {
			io.WriteString(e.stdout, pserial.Dump(v))
			continue
		}
		e.stdout.Write(f.Payload)
		io.WriteString(e.stdout, "\n")
	}
	if !tracker.Done() {
		e.logger.Warn("stream ended without a final frame", "input", name, "last_seq", tracker.LastSeq())
	}
	return nil
}
