package contracts

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBridgeABIs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		abis, err := ParseBridgeABIs("", "")
		require.NoError(t, err)

		assert.Equal(t, LockEventName, abis.LockEvent.Name)
		assert.Equal(t, crypto.Keccak256Hash([]byte("TokensLocked(address,address,uint256,uint256)")), abis.LockEvent.ID)
		assert.Len(t, abis.LockEvent.Inputs.NonIndexed(), 2)

		unlock, ok := abis.Destination.Methods[UnlockMethodName]
		require.True(t, ok)
		assert.Equal(t, "unlockTokens(address,uint256,uint256)", unlock.Sig)
	})

	t.Run("custom event abi", func(t *testing.T) {
		custom := `[{"anonymous":false,"inputs":[
			{"indexed":false,"name":"recipient","type":"address"},
			{"indexed":false,"name":"amount","type":"uint256"},
			{"indexed":true,"name":"nonce","type":"uint256"}
		],"name":"Locked","type":"event"}]`

		abis, err := ParseBridgeABIs("Locked", custom)
		require.NoError(t, err)
		assert.Equal(t, "Locked", abis.LockEvent.Name)
	})

	t.Run("event missing from abi", func(t *testing.T) {
		_, err := ParseBridgeABIs("Deposited", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Deposited")
	})

	t.Run("invalid abi json", func(t *testing.T) {
		_, err := ParseBridgeABIs("", "{not json")
		require.Error(t, err)
	})
}
