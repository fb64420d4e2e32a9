package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PSERIAL_CODEC_MAX_DEPTH.
const EnvPrefix = "PSERIAL"

// ViperConfig is a Config backed by viper. It reads an optional file
// plus PSERIAL_* environment variables and can reload on file change.
type ViperConfig struct {
	viper       *viper.Viper
	logger      *slog.Logger
	mu          sync.RWMutex
	config      *Config
	subscribers []func(*Config)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every key so environment variables are seen by
// Unmarshal even when the file does not mention the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("codec.max_depth", d.Codec.MaxDepth)
	v.SetDefault("codec.header_mode", d.Codec.HeaderMode)
	v.SetDefault("codec.denylist", d.Codec.Denylist)
	v.SetDefault("codec.schema_file", d.Codec.SchemaFile)
	v.SetDefault("codec.strict", d.Codec.Strict)

	v.SetDefault("envelope.compression", d.Envelope.Compression)
	v.SetDefault("envelope.crc", d.Envelope.CRC)
	v.SetDefault("envelope.digest", d.Envelope.Digest)
	v.SetDefault("envelope.max_payload", d.Envelope.MaxPayload)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.hot_reload", d.Server.HotReload)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func decode(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Load reads configFile, if not empty, and environment overrides.
func Load(configFile string) (*ViperConfig, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(configFile), "."))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &ViperConfig{
		viper:  v,
		logger: slog.Default(),
		config: config,
	}, nil
}

// LoadFromReader reads configuration of the given format ("yaml",
// "json", "toml") from r, with environment overrides applied.
func LoadFromReader(r io.Reader, format string) (*Config, error) {
	v := newViper()
	v.SetConfigType(strings.ToLower(format))
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return decode(v)
}

// SetLogger sets the logger used to report reloads.
func (vc *ViperConfig) SetLogger(logger *slog.Logger) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.logger = logger
}

// Get returns the current configuration. The returned value must not be
// modified.
func (vc *ViperConfig) Get() *Config {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.config
}

// Subscribe registers fn to be called with each successfully reloaded
// configuration.
func (vc *ViperConfig) Subscribe(fn func(*Config)) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.subscribers = append(vc.subscribers, fn)
}

// Reload re-reads the configuration file. An invalid file leaves the
// current configuration in place.
func (vc *ViperConfig) Reload() error {
	if vc.viper.ConfigFileUsed() != "" {
		if err := vc.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return vc.apply()
}

func (vc *ViperConfig) apply() error {
	config, err := decode(vc.viper)
	if err != nil {
		return err
	}

	vc.mu.Lock()
	vc.config = config
	subscribers := make([]func(*Config), len(vc.subscribers))
	copy(subscribers, vc.subscribers)
	vc.mu.Unlock()

	for _, fn := range subscribers {
		fn(config)
	}
	return nil
}

// EnableHotReload watches the configuration file and applies changes.
// It does nothing when no file was loaded.
func (vc *ViperConfig) EnableHotReload() {
	if vc.viper.ConfigFileUsed() == "" {
		return
	}
	vc.viper.OnConfigChange(func(e fsnotify.Event) {
		vc.mu.RLock()
		logger := vc.logger
		vc.mu.RUnlock()

		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		if err := vc.apply(); err != nil {
			logger.Error("config reload rejected", "error", err)
		}
	})
	vc.viper.WatchConfig()
}
