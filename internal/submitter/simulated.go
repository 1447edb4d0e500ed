package submitter

import (
	"context"
	"fmt"

	"github.com/NethermindEth/bridge-listener/internal/contracts"
	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SimulatedSubmitter records the unlock it would send instead of sending it.
// With a caller set it dry-runs the call with eth_call so contract-level
// rejections still surface as failures.
type SimulatedSubmitter struct {
	chain    string
	contract common.Address
	abi      abi.ABI
	caller   ContractCaller
	logger   logrus.FieldLogger
}

func NewSimulatedSubmitter(chain string, contract common.Address, destABI abi.ABI, caller ContractCaller, logger logrus.FieldLogger) *SimulatedSubmitter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SimulatedSubmitter{
		chain:    chain,
		contract: contract,
		abi:      destABI,
		caller:   caller,
		logger:   logger,
	}
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, ev types.ValidatedEvent) types.SubmissionResult {
	nonce := ev.NonceKey()

	data, err := packUnlock(s.abi, ev)
	if err != nil {
		return types.SubmissionFailed(nonce, err)
	}

	s.logger.WithFields(eventFields(ev)).WithFields(logrus.Fields{
		"chain":    s.chain,
		"contract": s.contract.Hex(),
		"function": contracts.UnlockMethodName,
		"dry_run":  s.caller != nil,
	}).Infof("📤 Simulating %s on %s", contracts.UnlockMethodName, s.chain)

	if ev.Amount.IsZero() {
		return types.SubmissionFailed(nonce, ErrZeroAmount)
	}

	if s.caller != nil {
		if _, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: data}, nil); err != nil {
			return types.SubmissionFailed(nonce, fmt.Errorf("dry run of %s failed: %w", contracts.UnlockMethodName, err))
		}
	}

	ref := "sim-" + crypto.Keccak256Hash(s.contract.Bytes(), data).Hex()
	return types.SubmissionSucceeded(nonce, ref)
}
