package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	// LockEventName is the source bridge event the listener scans for
	LockEventName = "TokensLocked"
	// UnlockMethodName is the destination bridge function invoked per accepted event
	UnlockMethodName = "unlockTokens"
)

// SourceBridgeABI is the minimal source bridge ABI: TokensLocked(address indexed sender, address indexed recipient, uint256 amount, uint256 nonce)
const SourceBridgeABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "recipient", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"}
		],
		"name": "TokensLocked",
		"type": "event"
	}
]`

// DestinationBridgeABI is the minimal destination bridge ABI: unlockTokens(address recipient, uint256 amount, uint256 sourceNonce)
const DestinationBridgeABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "recipient", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "sourceNonce", "type": "uint256"}
		],
		"name": "unlockTokens",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// BridgeABIs bundles the parsed source event and destination contract ABI
type BridgeABIs struct {
	LockEvent   abi.Event
	Destination abi.ABI
}

// ParseBridgeABIs parses the source event ABI (eventABI overrides the default
// when non-empty) and the destination bridge ABI.
func ParseBridgeABIs(eventName, eventABI string) (*BridgeABIs, error) {
	if eventName == "" {
		eventName = LockEventName
	}
	if strings.TrimSpace(eventABI) == "" {
		eventABI = SourceBridgeABI
	}

	sourceABI, err := abi.JSON(strings.NewReader(eventABI))
	if err != nil {
		return nil, fmt.Errorf("source event abi parse failed: %w", err)
	}
	event, ok := sourceABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %s not found in source abi", eventName)
	}

	destABI, err := abi.JSON(strings.NewReader(DestinationBridgeABI))
	if err != nil {
		return nil, fmt.Errorf("destination abi parse failed: %w", err)
	}
	if _, ok := destABI.Methods[UnlockMethodName]; !ok {
		return nil, fmt.Errorf("method %s not found in destination abi", UnlockMethodName)
	}

	return &BridgeABIs{LockEvent: event, Destination: destABI}, nil
}
