package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// NetworkConfig represents one side of the bridge
type NetworkConfig struct {
	Name            string
	RPCURL          string
	ChainID         uint64 // 0 = accept whatever the node reports
	ContractAddress common.Address
}

// Network role keys used in the configuration tree
const (
	SourceNetwork      = "source"
	DestinationNetwork = "destination"
)

var legacyEnvNames = map[string][]string{
	"source.rpc_url":               {"SOURCE_RPC_URL", "SOURCE_CHAIN_RPC_URL"},
	"source.contract_address":      {"SOURCE_CONTRACT_ADDRESS"},
	"destination.rpc_url":          {"DESTINATION_RPC_URL", "DESTINATION_CHAIN_RPC_URL"},
	"destination.contract_address": {"DESTINATION_CONTRACT_ADDRESS"},
	"listener.start_block":         {"START_BLOCK"},
}

// bindLegacyEnv maps the flat environment variable names used by existing
// deployments onto the structured keys. Prefixed BRIDGE_* variables still win.
func bindLegacyEnv(v *viper.Viper, prefix string) error {
	for key, names := range legacyEnvNames {
		args := append([]string{key, envName(prefix, key)}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// loadNetwork reads one network section
func loadNetwork(v *viper.Viper, role string) (NetworkConfig, error) {
	addr := v.GetString(role + ".contract_address")
	if addr != "" && !common.IsHexAddress(addr) {
		return NetworkConfig{}, fmt.Errorf("%s.contract_address is not a valid address: %q", role, addr)
	}
	return NetworkConfig{
		Name:            v.GetString(role + ".name"),
		RPCURL:          v.GetString(role + ".rpc_url"),
		ChainID:         v.GetUint64(role + ".chain_id"),
		ContractAddress: common.HexToAddress(addr),
	}, nil
}

// validate checks the fields every network needs
func (n NetworkConfig) validate(role string) error {
	if n.RPCURL == "" {
		return fmt.Errorf("%s.rpc_url is required", role)
	}
	if n.ContractAddress == (common.Address{}) {
		return fmt.Errorf("%s.contract_address is required", role)
	}
	return nil
}
