package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ToEVMAddress converts a string address to an EVM common.Address.
// Accepts a 20-byte hex address or a 32-byte word with the address right-aligned,
// which is how some bridge contracts emit recipients that may live on non-EVM chains.
func ToEVMAddress(address string) (common.Address, error) {
	cleanAddr := strings.TrimPrefix(strings.TrimSpace(address), "0x")

	switch len(cleanAddr) {
	case 40:
		if !common.IsHexAddress(cleanAddr) {
			return common.Address{}, fmt.Errorf("invalid hex address: %s", address)
		}
		return common.HexToAddress(cleanAddr), nil

	case 64:
		bytes, err := hex.DecodeString(cleanAddr)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to decode bytes32 address: %w", err)
		}
		// Upper 12 bytes must be zero padding, otherwise this is not an EVM address
		for _, b := range bytes[:12] {
			if b != 0 {
				return common.Address{}, fmt.Errorf("bytes32 value is not a left-padded EVM address: %s", address)
			}
		}
		return common.BytesToAddress(bytes[12:]), nil
	}

	return common.Address{}, fmt.Errorf("unsupported address format: %s", address)
}

// FormatAddress formats an address consistently for logs and storage keys
func FormatAddress(address common.Address) string {
	return strings.ToLower(address.Hex())
}
