// Package config holds the runtime configuration of the pserial service
// and CLI: codec limits, envelope framing, HTTP server and logging.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Neumenon/pserial/envelope"
	"github.com/Neumenon/pserial/pserial"
	"github.com/Neumenon/pserial/schema"
)

// Config is the complete configuration.
type Config struct {
	Codec    CodecConfig    `mapstructure:"codec" yaml:"codec"`
	Envelope EnvelopeConfig `mapstructure:"envelope" yaml:"envelope"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// CodecConfig controls encoding and decoding.
type CodecConfig struct {
	// MaxDepth bounds container nesting on both encode and decode.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`

	// HeaderMode is "counted" or "uncounted" for emitted struct headers.
	HeaderMode string `mapstructure:"header_mode" yaml:"header_mode"`

	// Denylist holds extra struct name patterns the encoder refuses.
	Denylist []string `mapstructure:"denylist" yaml:"denylist"`

	// SchemaFile optionally names a struct descriptor file.
	SchemaFile string `mapstructure:"schema_file" yaml:"schema_file"`

	// Strict rejects structs the schema does not describe.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// EnvelopeConfig controls framing.
type EnvelopeConfig struct {
	Compression string `mapstructure:"compression" yaml:"compression"`
	CRC         bool   `mapstructure:"crc" yaml:"crc"`
	Digest      bool   `mapstructure:"digest" yaml:"digest"`
	MaxPayload  int    `mapstructure:"max_payload" yaml:"max_payload"`
}

// ServerConfig controls the inspection service.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HotReload       bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Codec: CodecConfig{
			MaxDepth:   pserial.DefaultMaxDepth,
			HeaderMode: pserial.HeaderCounted.String(),
		},
		Envelope: EnvelopeConfig{
			Compression: envelope.CompressionNone.String(),
			CRC:         true,
			MaxPayload:  envelope.MaxPayloadSize,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			MaxBodyBytes:    8 << 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Codec.MaxDepth <= 0 {
		return fmt.Errorf("codec.max_depth must be positive")
	}
	if _, err := pserial.ParseHeaderMode(c.Codec.HeaderMode); err != nil {
		return fmt.Errorf("codec.header_mode: %w", err)
	}
	for _, pattern := range c.Codec.Denylist {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("codec.denylist: %w", err)
		}
	}
	if c.Codec.Strict && c.Codec.SchemaFile == "" {
		return fmt.Errorf("codec.strict requires codec.schema_file")
	}

	if _, err := envelope.ParseCompression(c.Envelope.Compression); err != nil {
		return fmt.Errorf("envelope.compression: %w", err)
	}
	if c.Envelope.MaxPayload <= 0 {
		return fmt.Errorf("envelope.max_payload must be positive")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// CodecOptions builds codec options from the codec section. A schema
// file, if set, is loaded and installed as the registry.
func (c *Config) CodecOptions() ([]pserial.Option, error) {
	mode, err := pserial.ParseHeaderMode(c.Codec.HeaderMode)
	if err != nil {
		return nil, err
	}
	opts := []pserial.Option{
		pserial.WithMaxDepth(c.Codec.MaxDepth),
		pserial.WithHeaderMode(mode),
	}

	if len(c.Codec.Denylist) > 0 {
		patterns := make([]*regexp.Regexp, 0, len(c.Codec.Denylist))
		for _, p := range c.Codec.Denylist {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("codec.denylist: %w", err)
			}
			patterns = append(patterns, re)
		}
		opts = append(opts, pserial.WithDenylist(patterns...))
	}

	if c.Codec.SchemaFile != "" {
		set, err := schema.LoadFile(c.Codec.SchemaFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pserial.WithRegistry(set, c.Codec.Strict))
	}
	return opts, nil
}

// NewCodec builds a codec from the codec section.
func (c *Config) NewCodec() (*pserial.Codec, error) {
	opts, err := c.CodecOptions()
	if err != nil {
		return nil, err
	}
	return pserial.New(opts...), nil
}

// WriterOptions builds envelope writer options from the envelope section.
func (c *Config) WriterOptions() ([]envelope.WriterOption, error) {
	comp, err := envelope.ParseCompression(c.Envelope.Compression)
	if err != nil {
		return nil, err
	}
	opts := []envelope.WriterOption{envelope.WithCompression(comp)}
	if c.Envelope.CRC {
		opts = append(opts, envelope.WithCRC())
	}
	if c.Envelope.Digest {
		opts = append(opts, envelope.WithDigest())
	}
	return opts, nil
}

// ReaderOptions builds envelope reader options from the envelope section.
func (c *Config) ReaderOptions() []envelope.ReaderOption {
	return []envelope.ReaderOption{
		envelope.WithMaxPayload(c.Envelope.MaxPayload),
		envelope.WithCRCVerification(c.Envelope.CRC),
	}
}

// NewLogger builds a slog logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}
