package submitter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/NethermindEth/bridge-listener/internal/contracts"
	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// EVMSubmitterConfig configures a signing submitter
type EVMSubmitterConfig struct {
	Chain          string
	Contract       common.Address
	PrivateKey     string
	ReceiptTimeout time.Duration // 0 = wait until ctx is done
}

// EVMSubmitter signs and sends unlockTokens transactions to the destination bridge
type EVMSubmitter struct {
	cfg     EVMSubmitterConfig
	abi     abi.ABI
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	auth    *bind.TransactOpts
	nonces  *NonceManager
	logger  logrus.FieldLogger
}

// NewEVMSubmitter parses the signing key. Prepare must be called once the
// destination ledger is connected.
func NewEVMSubmitter(cfg EVMSubmitterConfig, destABI abi.ABI, backend Backend, logger logrus.FieldLogger) (*EVMSubmitter, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &EVMSubmitter{
		cfg:     cfg,
		abi:     destABI,
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		nonces:  NewNonceManager(backend),
		logger:  logger,
	}, nil
}

// Prepare builds the transactor for the destination chain id and checks that
// the destination bridge has code deployed.
func (s *EVMSubmitter) Prepare(ctx context.Context) error {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return fmt.Errorf("failed to create auth: %w", err)
	}

	code, err := s.backend.CodeAt(ctx, s.cfg.Contract, nil)
	if err != nil {
		return fmt.Errorf("failed to read destination bridge code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract deployed at %s on %s", s.cfg.Contract.Hex(), s.cfg.Chain)
	}

	s.auth = auth
	s.logger.WithFields(logrus.Fields{
		"chain":    s.cfg.Chain,
		"chain_id": chainID.String(),
		"signer":   s.from.Hex(),
	}).Info("🔑 Destination signer ready")
	return nil
}

// From returns the signer address
func (s *EVMSubmitter) From() common.Address {
	return s.from
}

func (s *EVMSubmitter) Submit(ctx context.Context, ev types.ValidatedEvent) types.SubmissionResult {
	nonce := ev.NonceKey()
	if s.auth == nil {
		return types.SubmissionFailed(nonce, ErrNotPrepared)
	}
	logger := s.logger.WithFields(eventFields(ev)).WithField("chain", s.cfg.Chain)

	data, err := packUnlock(s.abi, ev)
	if err != nil {
		return types.SubmissionFailed(nonce, err)
	}

	// Estimation runs the call, so contract rejections (repeated nonce, zero amount) fail here
	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: s.auth.From,
		To:   &s.cfg.Contract,
		Data: data,
	})
	if err != nil {
		return types.SubmissionFailed(nonce, fmt.Errorf("%s rejected by destination: %w", contracts.UnlockMethodName, err))
	}

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return types.SubmissionFailed(nonce, fmt.Errorf("failed to get gas price: %w", err))
	}

	txNonce, err := s.nonces.Next(ctx, s.auth.From)
	if err != nil {
		return types.SubmissionFailed(nonce, err)
	}

	tx := ethtypes.NewTransaction(txNonce, s.cfg.Contract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := s.auth.Signer(s.auth.From, tx)
	if err != nil {
		s.nonces.Reset(s.auth.From)
		return types.SubmissionFailed(nonce, fmt.Errorf("failed to sign unlock transaction: %w", err))
	}

	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		s.nonces.Reset(s.auth.From)
		return types.SubmissionFailed(nonce, fmt.Errorf("failed to send unlock transaction: %w", err))
	}

	txHash := signedTx.Hash().Hex()
	logger.WithField("tx", txHash).Info("📡 Unlock transaction sent, waiting for confirmation")

	waitCtx := ctx
	if s.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, s.backend, signedTx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no receipt after %s: %w", s.cfg.ReceiptTimeout, err)
		}
		return types.SubmissionFailed(nonce, fmt.Errorf("failed to wait for %s: %w", txHash, err))
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return types.SubmissionFailed(nonce, fmt.Errorf("%w: %s", ErrTxReverted, txHash))
	}

	return types.SubmissionSucceeded(nonce, txHash)
}
