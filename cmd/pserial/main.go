// pserial - PHP-style serialization codec CLI
//
// Usage:
//
//	pserial encode [--from json|yaml|msgpack|cbor|protobuf] [file]   Convert to wire text
//	pserial decode [--to json|yaml|...] [--schema file [--strict]] [--force] [file]
//	pserial dump [file]                                            Print a var_dump-style tree
//	pserial check [file]                                           Validate wire text
//	pserial frame [--compress zstd|lz4] [--digest] [file...]       Wrap documents in frames
//	pserial unframe [--dump] [file]                                Verify frames and print payloads
//	pserial version                                                Print version info
//
// Global flags: --config, --max-depth, --uncounted-objects, --verbose.
// If no file is given, reads from stdin.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Neumenon/pserial/internal/config"
	"github.com/Neumenon/pserial/internal/formats"
	"github.com/Neumenon/pserial/pserial"
	"github.com/Neumenon/pserial/schema"
)

const libVersion = "0.1.0"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError marks errors caused by bad arguments.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env carries the I/O and settings shared by every command.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

type command struct {
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(e *env, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"encode":  {"convert another format to wire text", encodeFlags, cmdEncode},
	"decode":  {"convert wire text to another format", decodeFlags, cmdDecode},
	"dump":    {"print a var_dump-style tree", nil, cmdDump},
	"check":   {"validate wire text", nil, cmdCheck},
	"frame":   {"wrap documents in envelope frames", frameFlags, cmdFrame},
	"unframe": {"verify frames and print their payloads", unframeFlags, cmdUnframe},
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	name := args[0]
	switch name {
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "pserial %s\n", libVersion)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", name)
		printUsage(stderr)
		return exitUsage
	}

	fs := pflag.NewFlagSet("pserial "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addGlobalFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}
	if err := e.setup(fs); err != nil {
		fmt.Fprintf(stderr, "pserial: %v\n", err)
		return exitUsage
	}

	if err := cmd.run(e, fs); err != nil {
		fmt.Fprintf(stderr, "pserial %s: %v\n", name, err)
		var ue *usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pserial <command> [flags] [file]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range []string{"encode", "decode", "dump", "check", "frame", "unframe"} {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "  %-8s %s\n", "version", "print version info")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags: --config, --max-depth, --uncounted-objects, --verbose")
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "configuration file (yaml, json or toml)")
	fs.Int("max-depth", pserial.DefaultMaxDepth, "maximum container nesting")
	fs.Bool("uncounted-objects", false, "write struct headers without a field count")
	fs.BoolP("verbose", "V", false, "log progress to stderr")
}

// setup loads configuration and applies flag overrides.
func (e *env) setup(fs *pflag.FlagSet) error {
	cfg := config.DefaultConfig()
	if path, _ := fs.GetString("config"); path != "" {
		vc, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = vc.Get()
	}
	// Flag overrides copy the config so a loaded one is never mutated.
	c := *cfg
	if fs.Changed("max-depth") {
		c.Codec.MaxDepth, _ = fs.GetInt("max-depth")
	}
	if uncounted, _ := fs.GetBool("uncounted-objects"); uncounted {
		c.Codec.HeaderMode = pserial.HeaderUncounted.String()
	}
	if verbose, _ := fs.GetBool("verbose"); verbose {
		c.Log.Level = "debug"
	} else if !fs.Changed("config") {
		c.Log.Level = "warn"
	}
	if err := c.Validate(); err != nil {
		return err
	}
	e.cfg = &c
	e.logger = c.NewLogger(e.stderr)
	return nil
}

func (e *env) codec() (*pserial.Codec, error) {
	return e.cfg.NewCodec()
}

// input returns the single file argument, or stdin.
func (e *env) input(fs *pflag.FlagSet) ([]byte, string, error) {
	switch args := fs.Args(); {
	case len(args) > 1:
		return nil, "", usagef("expected at most one file, got %d", len(args))
	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		return data, args[0], err
	default:
		data, err := io.ReadAll(e.stdin)
		return data, "<stdin>", err
	}
}

// ============================================================
// encode / decode
// ============================================================

func encodeFlags(fs *pflag.FlagSet) {
	fs.String("from", "json", "input format")
}

func cmdEncode(e *env, fs *pflag.FlagSet) error {
	codec, err := e.codec()
	if err != nil {
		return err
	}
	data, name, err := e.input(fs)
	if err != nil {
		return err
	}

	from, _ := fs.GetString("from")
	set := formats.New(codec)
	if _, err := set.Lookup(from); err != nil {
		return usagef("--from: %v", err)
	}
	v, err := set.Decode(from, data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	out, err := codec.AppendEncode(nil, v)
	if err != nil {
		return err
	}
	e.logger.Debug("encoded", "input", name, "from", from, "bytes", len(out))
	_, err = e.stdout.Write(out)
	return err
}

func decodeFlags(fs *pflag.FlagSet) {
	fs.String("to", "json", "output format")
	fs.String("schema", "", "struct descriptor file used to validate structs")
	fs.Bool("strict", false, "reject structs the schema does not describe")
	fs.Bool("force", false, "write binary output even to a terminal")
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func cmdDecode(e *env, fs *pflag.FlagSet) error {
	to, _ := fs.GetString("to")
	schemaFile, _ := fs.GetString("schema")
	strict, _ := fs.GetBool("strict")
	if strict && schemaFile == "" && e.cfg.Codec.SchemaFile == "" {
		return usagef("--strict requires --schema")
	}

	codec, err := e.codec()
	if err != nil {
		return err
	}
	set := formats.New(codec)
	if _, err := set.Lookup(to); err != nil {
		return usagef("--to: %v", err)
	}
	if force, _ := fs.GetBool("force"); formats.Binary(to) && !force && isTerminal(e.stdout) {
		return usagef("refusing to write %s to a terminal (use --force)", to)
	}

	data, name, err := e.input(fs)
	if err != nil {
		return err
	}
	v, err := codec.DecodeBytes(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var reg pserial.Registry = codec.Options().Registry
	if schemaFile != "" {
		s, err := schema.LoadFile(schemaFile)
		if err != nil {
			return err
		}
		reg = s
	}
	if reg != nil {
		// Resolution validates every struct against its descriptor.
		if _, err := pserial.ToNative(v, reg, strict || e.cfg.Codec.Strict); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	out, err := set.Encode(to, v)
	if err != nil {
		return err
	}
	if _, err := e.stdout.Write(out); err != nil {
		return err
	}
	if to == "json" {
		_, err = io.WriteString(e.stdout, "\n")
	}
	return err
}

// ============================================================
// dump / check
// ============================================================

func cmdDump(e *env, fs *pflag.FlagSet) error {
	v, _, err := e.decodeInput(fs)
	if err != nil {
		return err
	}
	_, err = io.WriteString(e.stdout, pserial.Dump(v))
	return err
}

func cmdCheck(e *env, fs *pflag.FlagSet) error {
	v, name, err := e.decodeInput(fs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: ok (%s)\n", name, v.Kind())
	return nil
}

func (e *env) decodeInput(fs *pflag.FlagSet) (*pserial.Value, string, error) {
	codec, err := e.codec()
	if err != nil {
		return nil, "", err
	}
	data, name, err := e.input(fs)
	if err != nil {
		return nil, "", err
	}
	v, err := codec.DecodeBytes(data)
	if err != nil {
		return nil, name, fmt.Errorf("%s: %w", name, err)
	}
	return v, name, nil
}
