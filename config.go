package vcnet

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// A Duration is a time.Duration that unmarshals from YAML either as a
// Go duration string ("50ms") or as a plain number of milliseconds.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}

		*d = Duration(v)
		return nil
	}

	var ms int64
	if err := unmarshal(&ms); err != nil {
		return err
	}

	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// CodecConfig selects the body transformations applied by the wire
// codec. Both sides of a connection must agree on it.
type CodecConfig struct {
	Serialization string `yaml:"serialization"` // binary, json, msgpack

	EnableCompression bool   `yaml:"compression"`
	CompressionAlgo   string `yaml:"compression_algo"` // lz4, zstd, gzip, zlib, snappy
	CompressionLevel  int    `yaml:"compression_level"`

	EnableEncryption bool   `yaml:"encryption"`
	Secret           string `yaml:"secret"`

	MaxFragmentSize int `yaml:"max_fragment_size"`

	EnableBatching bool     `yaml:"batching"`
	BatchTimeout   Duration `yaml:"batch_timeout"`

	StrictVersionMatching bool `yaml:"strict_version_matching"`
}

// ChannelConfig tunes the delivery channels.
type ChannelConfig struct {
	RetryTimeout Duration `yaml:"retry_timeout"`
	MaxRetries   int      `yaml:"max_retries"`
	WindowSize   int      `yaml:"window_size"`
}

// ServerConfig is the full server-side configuration surface. It is
// read once at startup; there is no hot reload.
type ServerConfig struct {
	Port       int `yaml:"port"`
	MaxPlayers int `yaml:"player_limit"`

	SnapshotInterval  Duration `yaml:"snapshot_interval"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`

	EnableWhitelist bool     `yaml:"whitelist_enabled"`
	Whitelist       []string `yaml:"whitelist"`
	Blacklist       []string `yaml:"blacklist"`

	AllowRegistration bool `yaml:"allow_registration"`

	EnableAntiCheat bool `yaml:"anticheat"`
	MaxWarnings     int  `yaml:"max_warnings"`

	EnableAutoBackup bool     `yaml:"auto_backup"`
	BackupInterval   Duration `yaml:"backup_interval"`
	BackupPath       string   `yaml:"backup_path"`

	AuthDBPath string `yaml:"auth_db_path"`

	KickUnknownPackets bool `yaml:"kick_unknown_packets"`

	Codec   CodecConfig   `yaml:"codec"`
	Channel ChannelConfig `yaml:"channel"`
}

// ClientConfig is the full client-side configuration surface.
type ClientConfig struct {
	ServerAddress string `yaml:"server_address"`
	ServerPort    int    `yaml:"server_port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	ConnectionTimeout Duration `yaml:"connection_timeout"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	EnableAutoReconnect     bool     `yaml:"auto_reconnect"`
	ReconnectionDelay       Duration `yaml:"reconnection_delay"`
	MaxReconnectionAttempts int      `yaml:"max_reconnection_attempts"`

	TickRate int `yaml:"tick_rate"`

	InterpolationDelay Duration `yaml:"interpolation_delay"`
	ExtrapolationLimit Duration `yaml:"extrapolation_limit"`

	EnableClientSidePrediction bool    `yaml:"prediction"`
	EnableServerReconciliation bool    `yaml:"reconciliation"`
	PredictionErrorThreshold   float32 `yaml:"prediction_error_threshold"`
	InputBufferSize            int     `yaml:"input_buffer_size"`

	Codec   CodecConfig   `yaml:"codec"`
	Channel ChannelConfig `yaml:"channel"`
}

// DefaultCodecConfig returns the conservative codec defaults.
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		Serialization:    "binary",
		CompressionAlgo:  "lz4",
		CompressionLevel: 1,
		MaxFragmentSize:  1024,
		BatchTimeout:     Duration(10 * time.Millisecond),
	}
}

// DefaultChannelConfig returns the channel layer defaults.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		RetryTimeout: Duration(1000 * time.Millisecond),
		MaxRetries:   5,
		WindowSize:   64,
	}
}

// DefaultServerConfig returns a ServerConfig with every knob at its
// conservative default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:              25565,
		MaxPlayers:        32,
		SnapshotInterval:  Duration(50 * time.Millisecond),
		HeartbeatInterval: Duration(10 * time.Second),
		ConnectionTimeout: Duration(30 * time.Second),
		AllowRegistration: true,
		MaxWarnings:       3,
		BackupInterval:    Duration(5 * time.Minute),
		BackupPath:        "storage/world.db",
		AuthDBPath:        "storage/auth.sqlite",
		Codec:             DefaultCodecConfig(),
		Channel:           DefaultChannelConfig(),
	}
}

// DefaultClientConfig returns a ClientConfig with every knob at its
// conservative default.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddress:              "127.0.0.1",
		ServerPort:                 25565,
		ConnectionTimeout:          Duration(30 * time.Second),
		HeartbeatInterval:          Duration(10 * time.Second),
		EnableAutoReconnect:        true,
		ReconnectionDelay:          Duration(2 * time.Second),
		MaxReconnectionAttempts:    5,
		TickRate:                   60,
		InterpolationDelay:         Duration(100 * time.Millisecond),
		ExtrapolationLimit:         Duration(500 * time.Millisecond),
		EnableClientSidePrediction: true,
		EnableServerReconciliation: true,
		PredictionErrorThreshold:   0.1,
		InputBufferSize:            64,
		Codec:                      DefaultCodecConfig(),
		Channel:                    DefaultChannelConfig(),
	}
}

// LoadServerConfig reads a YAML configuration file over the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("can't parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadClientConfig reads a YAML configuration file over the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("can't parse %s: %w", path, err)
	}

	return cfg, nil
}
