package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
source:
  name: Sepolia
  rpc_url: http://localhost:8545
  contract_address: "0x1111111111111111111111111111111111111111"
  chain_id: 11155111
destination:
  rpc_url: http://localhost:8546
  contract_address: "0x2222222222222222222222222222222222222222"
listener:
  start_block: 100
  confirmation_blocks: 3
  poll_interval: 2s
  error_backoff: 500ms
  max_backoff: 30s
  max_block_range: 250
dedup:
  backend: redis
  redis_url: redis://localhost:6379/0
publisher:
  kafka_brokers: "broker-1:9092, broker-2:9092"
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads config file", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
		require.NoError(t, err)

		assert.Equal(t, "Sepolia", cfg.Source.Name)
		assert.Equal(t, "http://localhost:8545", cfg.Source.RPCURL)
		assert.Equal(t, uint64(11155111), cfg.Source.ChainID)
		assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), cfg.Source.ContractAddress)
		assert.Equal(t, "DestinationChain", cfg.Destination.Name)
		assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), cfg.Destination.ContractAddress)

		require.NotNil(t, cfg.Listener.StartBlock)
		assert.Equal(t, uint64(100), *cfg.Listener.StartBlock)
		assert.Equal(t, uint64(3), cfg.Listener.ConfirmationBlocks)
		assert.Equal(t, 2*time.Second, cfg.Listener.PollInterval)
		assert.Equal(t, 500*time.Millisecond, cfg.Listener.ErrorBackoff)
		assert.Equal(t, 30*time.Second, cfg.Listener.MaxBackoff)
		assert.Equal(t, uint64(250), cfg.Listener.MaxBlockRange)

		assert.Equal(t, DedupRedis, cfg.Dedup.Backend)
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Publisher.KafkaBrokers)
		assert.Equal(t, "bridge-submissions", cfg.Publisher.KafkaTopic)
		assert.Equal(t, SubmitModeSimulated, cfg.Submitter.Mode)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
	})

	t.Run("legacy environment names", func(t *testing.T) {
		t.Setenv("SOURCE_CHAIN_RPC_URL", "http://source:8545")
		t.Setenv("DESTINATION_CHAIN_RPC_URL", "http://dest:8545")
		t.Setenv("SOURCE_CONTRACT_ADDRESS", "0x3333333333333333333333333333333333333333")
		t.Setenv("DESTINATION_CONTRACT_ADDRESS", "0x4444444444444444444444444444444444444444")
		t.Setenv("START_BLOCK", "123")

		cfg, err := LoadConfig("")
		require.NoError(t, err)

		assert.Equal(t, "http://source:8545", cfg.Source.RPCURL)
		assert.Equal(t, "http://dest:8545", cfg.Destination.RPCURL)
		require.NotNil(t, cfg.Listener.StartBlock)
		assert.Equal(t, uint64(123), *cfg.Listener.StartBlock)
		assert.Equal(t, uint64(10), cfg.Listener.ConfirmationBlocks)
		assert.Equal(t, 15*time.Second, cfg.Listener.PollInterval)
	})

	t.Run("prefixed environment overrides file", func(t *testing.T) {
		t.Setenv("BRIDGE_SOURCE_RPC_URL", "http://override:8545")
		t.Setenv("BRIDGE_LISTENER_CONFIRMATION_BLOCKS", "7")

		cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
		require.NoError(t, err)
		assert.Equal(t, "http://override:8545", cfg.Source.RPCURL)
		assert.Equal(t, uint64(7), cfg.Listener.ConfirmationBlocks)
	})

	t.Run("start block is optional", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
source:
  rpc_url: http://localhost:8545
  contract_address: "0x1111111111111111111111111111111111111111"
destination:
  rpc_url: http://localhost:8546
  contract_address: "0x2222222222222222222222222222222222222222"
`))
		require.NoError(t, err)
		assert.Nil(t, cfg.Listener.StartBlock)
	})

	t.Run("invalid start block", func(t *testing.T) {
		t.Setenv("START_BLOCK", "latest")
		_, err := LoadConfig(writeConfig(t, testConfigYAML))
		// file value loses to the environment
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start_block")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func validConfig() *Config {
	return &Config{
		Source:      NetworkConfig{RPCURL: "http://a", ContractAddress: common.HexToAddress("0x1111111111111111111111111111111111111111")},
		Destination: NetworkConfig{RPCURL: "http://b", ContractAddress: common.HexToAddress("0x2222222222222222222222222222222222222222")},
		Listener: ListenerConfig{
			PollInterval:    time.Second,
			ErrorBackoff:    time.Second,
			MaxBackoff:      time.Minute,
			ConnectAttempts: 3,
		},
		Submitter: SubmitterConfig{Mode: SubmitModeSimulated},
		Dedup:     DedupConfig{Backend: DedupMemory},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"missing source rpc", func(c *Config) { c.Source.RPCURL = "" }, "source.rpc_url"},
		{"missing destination contract", func(c *Config) { c.Destination.ContractAddress = common.Address{} }, "destination.contract_address"},
		{"zero poll interval", func(c *Config) { c.Listener.PollInterval = 0 }, "poll_interval"},
		{"max backoff below base", func(c *Config) { c.Listener.MaxBackoff = time.Millisecond }, "max_backoff"},
		{"no connect attempts", func(c *Config) { c.Listener.ConnectAttempts = 0 }, "connect_attempts"},
		{"evm mode without key", func(c *Config) { c.Submitter.Mode = SubmitModeEVM }, "private_key"},
		{"unknown mode", func(c *Config) { c.Submitter.Mode = "carrier-pigeon" }, "submitter.mode"},
		{"redis without url", func(c *Config) { c.Dedup.Backend = DedupRedis }, "redis_url"},
		{"postgres without url", func(c *Config) { c.Dedup.Backend = DedupPostgres }, "postgres_url"},
		{"unknown dedup backend", func(c *Config) { c.Dedup.Backend = "etcd" }, "dedup.backend"},
		{"brokers without topic", func(c *Config) { c.Publisher.KafkaBrokers = []string{"b:9092"} }, "kafka_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadNetworkRejectsBadAddress(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
source:
  rpc_url: http://localhost:8545
  contract_address: "0xnotanaddress"
destination:
  rpc_url: http://localhost:8546
  contract_address: "0x2222222222222222222222222222222222222222"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.contract_address")
}
