package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/bridge-listener/internal/config"
	"github.com/NethermindEth/bridge-listener/internal/contracts"
	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrZeroAmount is the destination contract's rejection of an empty unlock
	ErrZeroAmount = errors.New("unlock amount must be greater than zero")
	// ErrTxReverted means the unlock transaction was mined with status 0
	ErrTxReverted = errors.New("unlock transaction reverted")
	// ErrNotPrepared is reported by submitters used before Prepare succeeded
	ErrNotPrepared = errors.New("submitter not prepared")
)

// Submitter dispatches the destination action for one validated event.
// Implementations report every failure in the result and never retry.
type Submitter interface {
	Submit(ctx context.Context, ev types.ValidatedEvent) types.SubmissionResult
}

// Preparer is implemented by submitters that need a connected destination
// ledger before their first submission
type Preparer interface {
	Prepare(ctx context.Context) error
}

// ContractCaller performs read-only calls against the destination bridge
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Backend is what the EVM submitter needs from the destination ledger client
type Backend interface {
	bind.DeployBackend
	ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// New builds the submitter selected by cfg.Submitter.Mode
func New(cfg *config.Config, destABI abi.ABI, dest Backend, logger logrus.FieldLogger) (Submitter, error) {
	switch cfg.Submitter.Mode {
	case config.SubmitModeSimulated:
		var caller ContractCaller
		if cfg.Submitter.DryRun {
			caller = dest
		}
		return NewSimulatedSubmitter(cfg.Destination.Name, cfg.Destination.ContractAddress, destABI, caller, logger), nil
	case config.SubmitModeEVM:
		return NewEVMSubmitter(EVMSubmitterConfig{
			Chain:          cfg.Destination.Name,
			Contract:       cfg.Destination.ContractAddress,
			PrivateKey:     cfg.Submitter.PrivateKey,
			ReceiptTimeout: cfg.Submitter.ReceiptTimeout,
		}, destABI, dest, logger)
	default:
		return nil, fmt.Errorf("unknown submitter mode %q", cfg.Submitter.Mode)
	}
}

// packUnlock encodes unlockTokens(recipient, amount, sourceNonce)
func packUnlock(destABI abi.ABI, ev types.ValidatedEvent) ([]byte, error) {
	data, err := destABI.Pack(contracts.UnlockMethodName, ev.Recipient, ev.Amount.ToBig(), ev.Nonce.ToBig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", contracts.UnlockMethodName, err)
	}
	return data, nil
}

func eventFields(ev types.ValidatedEvent) logrus.Fields {
	return logrus.Fields{
		"nonce":     ev.NonceKey(),
		"recipient": ev.Recipient.Hex(),
		"amount":    ev.Amount.Dec(),
	}
}
