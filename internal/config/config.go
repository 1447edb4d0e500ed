package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to structured keys when reading the environment (BRIDGE_SOURCE_RPC_URL, ...)
const EnvPrefix = "BRIDGE"

// Submission modes
const (
	SubmitModeSimulated = "simulated"
	SubmitModeEVM       = "evm"
)

// Nonce store backends
const (
	DedupMemory   = "memory"
	DedupRedis    = "redis"
	DedupPostgres = "postgres"
)

// Config holds everything the listener reads once at startup
type Config struct {
	Source      NetworkConfig
	Destination NetworkConfig

	Listener  ListenerConfig
	Event     EventConfig
	Submitter SubmitterConfig
	Dedup     DedupConfig
	Publisher PublisherConfig
	RPC       RPCConfig

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// ListenerConfig controls scanning, polling and backoff
type ListenerConfig struct {
	StartBlock           *uint64 // nil = source head - ConfirmationBlocks
	ConfirmationBlocks   uint64
	PollInterval         time.Duration
	ErrorBackoff         time.Duration
	MaxBackoff           time.Duration
	MaxBlockRange        uint64 // 0 = unbounded
	ConnectAttempts      uint64
	ConnectRetryInterval time.Duration
}

// EventConfig selects the source event; ABI empty = built-in TokensLocked fragment
type EventConfig struct {
	Name string
	ABI  string
}

// SubmitterConfig selects and configures the destination action submitter
type SubmitterConfig struct {
	Mode           string
	PrivateKey     string
	ReceiptTimeout time.Duration
	DryRun         bool
}

// DedupConfig selects where processed nonces are recorded
type DedupConfig struct {
	Backend     string
	RedisURL    string
	RedisPrefix string
	PostgresURL string
}

// PublisherConfig enables Kafka publication of submission results when brokers are set
type PublisherConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// RPCConfig limits the request rate towards both nodes; 0 = unlimited
type RPCConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.name", "SourceChain")
	v.SetDefault("destination.name", "DestinationChain")

	v.SetDefault("listener.confirmation_blocks", 10)
	v.SetDefault("listener.poll_interval", 15*time.Second)
	v.SetDefault("listener.error_backoff", 5*time.Second)
	v.SetDefault("listener.max_backoff", 2*time.Minute)
	v.SetDefault("listener.max_block_range", 2000)
	v.SetDefault("listener.connect_attempts", 5)
	v.SetDefault("listener.connect_retry_interval", 2*time.Second)

	v.SetDefault("event.name", "TokensLocked")

	v.SetDefault("submitter.mode", SubmitModeSimulated)
	v.SetDefault("submitter.receipt_timeout", 2*time.Minute)

	v.SetDefault("dedup.backend", DedupMemory)
	v.SetDefault("dedup.redis_prefix", "bridge:nonce:")

	v.SetDefault("publisher.kafka_topic", "bridge-submissions")

	v.SetDefault("rpc.burst", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func envName(prefix, key string) string {
	return prefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// LoadConfig loads .env (if present), the optional config file at path and the environment
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v, EnvPrefix); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	source, err := loadNetwork(v, SourceNetwork)
	if err != nil {
		return nil, err
	}
	destination, err := loadNetwork(v, DestinationNetwork)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Source:      source,
		Destination: destination,
		Listener: ListenerConfig{
			ConfirmationBlocks:   v.GetUint64("listener.confirmation_blocks"),
			PollInterval:         v.GetDuration("listener.poll_interval"),
			ErrorBackoff:         v.GetDuration("listener.error_backoff"),
			MaxBackoff:           v.GetDuration("listener.max_backoff"),
			MaxBlockRange:        v.GetUint64("listener.max_block_range"),
			ConnectAttempts:      v.GetUint64("listener.connect_attempts"),
			ConnectRetryInterval: v.GetDuration("listener.connect_retry_interval"),
		},
		Event: EventConfig{
			Name: v.GetString("event.name"),
			ABI:  v.GetString("event.abi"),
		},
		Submitter: SubmitterConfig{
			Mode:           strings.ToLower(v.GetString("submitter.mode")),
			PrivateKey:     v.GetString("submitter.private_key"),
			ReceiptTimeout: v.GetDuration("submitter.receipt_timeout"),
			DryRun:         v.GetBool("submitter.dry_run"),
		},
		Dedup: DedupConfig{
			Backend:     strings.ToLower(v.GetString("dedup.backend")),
			RedisURL:    v.GetString("dedup.redis_url"),
			RedisPrefix: v.GetString("dedup.redis_prefix"),
			PostgresURL: v.GetString("dedup.postgres_url"),
		},
		Publisher: PublisherConfig{
			KafkaBrokers: splitCSV(v.GetString("publisher.kafka_brokers")),
			KafkaTopic:   v.GetString("publisher.kafka_topic"),
		},
		RPC: RPCConfig{
			RequestsPerSecond: v.GetFloat64("rpc.requests_per_second"),
			Burst:             v.GetInt("rpc.burst"),
		},
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		MetricsAddr: v.GetString("metrics.addr"),
	}

	if v.IsSet("listener.start_block") {
		raw := strings.TrimSpace(v.GetString("listener.start_block"))
		if raw != "" {
			start := v.GetUint64("listener.start_block")
			if start == 0 && raw != "0" {
				return nil, fmt.Errorf("listener.start_block is not a valid block number: %q", raw)
			}
			cfg.Listener.StartBlock = &start
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the listener cannot run with
func (c *Config) Validate() error {
	if err := c.Source.validate(SourceNetwork); err != nil {
		return err
	}
	if err := c.Destination.validate(DestinationNetwork); err != nil {
		return err
	}

	if c.Listener.PollInterval <= 0 {
		return errors.New("listener.poll_interval must be positive")
	}
	if c.Listener.ErrorBackoff <= 0 {
		return errors.New("listener.error_backoff must be positive")
	}
	if c.Listener.MaxBackoff < c.Listener.ErrorBackoff {
		return fmt.Errorf("listener.max_backoff (%s) must be >= listener.error_backoff (%s)", c.Listener.MaxBackoff, c.Listener.ErrorBackoff)
	}
	if c.Listener.ConnectAttempts == 0 {
		return errors.New("listener.connect_attempts must be at least 1")
	}

	switch c.Submitter.Mode {
	case SubmitModeSimulated:
	case SubmitModeEVM:
		if c.Submitter.PrivateKey == "" {
			return errors.New("submitter.private_key is required in evm mode")
		}
	default:
		return fmt.Errorf("unknown submitter.mode %q", c.Submitter.Mode)
	}

	switch c.Dedup.Backend {
	case DedupMemory:
	case DedupRedis:
		if c.Dedup.RedisURL == "" {
			return errors.New("dedup.redis_url is required for the redis backend")
		}
	case DedupPostgres:
		if c.Dedup.PostgresURL == "" {
			return errors.New("dedup.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown dedup.backend %q", c.Dedup.Backend)
	}

	if len(c.Publisher.KafkaBrokers) > 0 && c.Publisher.KafkaTopic == "" {
		return errors.New("publisher.kafka_topic is required when brokers are set")
	}
	if c.RPC.RequestsPerSecond < 0 {
		return errors.New("rpc.requests_per_second must not be negative")
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
