package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/NethermindEth/bridge-listener/internal/metrics"
	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ethBackend is the subset of *ethclient.Client the ledger client uses
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

type dialFunc func(ctx context.Context, rpcURL string) (ethBackend, error)

func dialEthClient(ctx context.Context, rpcURL string) (ethBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EVMClient implements Client for EVM chains over JSON-RPC
type EVMClient struct {
	name    string
	rpcURL  string
	chainID uint64
	limiter *rate.Limiter
	logger  logrus.FieldLogger
	dial    dialFunc

	mu       sync.RWMutex
	eth      ethBackend
	lastHead uint64
	haveHead bool
}

// EVMClientOption configures an EVMClient
type EVMClientOption func(*EVMClient)

// WithChainID makes Connect reject endpoints that report a different chain id
func WithChainID(chainID uint64) EVMClientOption {
	return func(c *EVMClient) { c.chainID = chainID }
}

// WithRateLimit throttles RPC calls to rps requests per second; rps <= 0 disables it
func WithRateLimit(rps float64, burst int) EVMClientOption {
	return func(c *EVMClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for connection and decode messages
func WithLogger(logger logrus.FieldLogger) EVMClientOption {
	return func(c *EVMClient) { c.logger = logger }
}

// NewEVMClient creates a client for rpcURL. No network traffic happens until Connect.
func NewEVMClient(name, rpcURL string, opts ...EVMClientOption) *EVMClient {
	c := &EVMClient{
		name:   name,
		rpcURL: rpcURL,
		logger: logrus.StandardLogger(),
		dial:   dialEthClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("ledger", name)
	return c
}

// Name returns the human-readable chain name
func (c *EVMClient) Name() string {
	return c.name
}

// Connect dials the endpoint and verifies it answers eth_chainId. It does not retry.
func (c *EVMClient) Connect(ctx context.Context) error {
	if err := c.wait(ctx, "connect"); err != nil {
		return err
	}

	eth, err := c.dial(ctx, c.rpcURL)
	if err != nil {
		return c.connErr("dial", err)
	}

	chainID, err := eth.ChainID(ctx)
	metrics.RecordRPCCall(c.name, "eth_chainId", err)
	if err != nil {
		eth.Close()
		return c.connErr("eth_chainId", err)
	}
	if c.chainID != 0 && chainID.Uint64() != c.chainID {
		eth.Close()
		return c.connErr("eth_chainId", fmt.Errorf("%w: expected %d, endpoint reports %s", ErrChainIDMismatch, c.chainID, chainID))
	}

	c.mu.Lock()
	old := c.eth
	c.eth = eth
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.logger.WithField("chain_id", chainID.String()).Infof("📡 Connected to %s", c.name)
	return nil
}

// Close releases the underlying RPC connection
func (c *EVMClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// CurrentHeight returns the latest block number. A head lower than the last one
// observed is reported as a transient error and not recorded.
func (c *EVMClient) CurrentHeight(ctx context.Context) (uint64, error) {
	eth, err := c.backend(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	head, err := eth.BlockNumber(ctx)
	metrics.RecordRPCCall(c.name, "eth_blockNumber", err)
	if err != nil {
		return 0, c.connErr("eth_blockNumber", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveHead && head < c.lastHead {
		return 0, c.connErr("eth_blockNumber", fmt.Errorf("%w: %d < %d", ErrHeadRegressed, head, c.lastHead))
	}
	c.lastHead = head
	c.haveHead = true
	return head, nil
}

// ReadEvents returns the decoded logs of q.Event emitted by q.Contract in
// [q.FromBlock, q.ToBlock], ordered by (block number, log index).
func (c *EVMClient) ReadEvents(ctx context.Context, q Query) ([]types.RawEvent, error) {
	if q.FromBlock > q.ToBlock {
		return nil, fmt.Errorf("%w: fromBlock (%d) > toBlock (%d)", ErrInvalidRange, q.FromBlock, q.ToBlock)
	}

	eth, err := c.backend(ctx, "eth_getLogs")
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{q.Contract},
		Topics:    [][]common.Hash{{q.Event.ID}},
	}

	logs, err := eth.FilterLogs(ctx, query)
	metrics.RecordRPCCall(c.name, "eth_getLogs", err)
	if err != nil {
		return nil, c.connErr("eth_getLogs", err)
	}

	events := make([]types.RawEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		params, derr := decodeLog(q.Event, lg)
		if derr != nil {
			// Keep the event: the processor reports it as malformed
			c.logger.WithFields(logrus.Fields{
				"block": lg.BlockNumber,
				"tx":    lg.TxHash.Hex(),
				"index": lg.Index,
				"error": derr,
			}).Warnf("⚠️  Failed to decode %s log", q.Event.Name)
		}
		events = append(events, types.RawEvent{
			Address:     lg.Address,
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
			LogIndex:    lg.Index,
			Params:      params,
		})
	}

	slices.SortStableFunc(events, func(a, b types.RawEvent) int {
		if n := cmp.Compare(a.BlockNumber, b.BlockNumber); n != 0 {
			return n
		}
		return cmp.Compare(a.LogIndex, b.LogIndex)
	})
	return events, nil
}

// decodeLog unpacks indexed topics and data into one map keyed by argument name.
// On error the map holds whatever decoded successfully.
func decodeLog(event abi.Event, lg ethtypes.Log) (map[string]any, error) {
	params := make(map[string]any)

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	var errs []error
	if len(lg.Topics) < 1+len(indexed) {
		errs = append(errs, fmt.Errorf("expected %d topics, got %d", 1+len(indexed), len(lg.Topics)))
	} else if err := abi.ParseTopicsIntoMap(params, indexed, lg.Topics[1:1+len(indexed)]); err != nil {
		errs = append(errs, fmt.Errorf("topics: %w", err))
	}

	if err := event.Inputs.NonIndexed().UnpackIntoMap(params, lg.Data); err != nil {
		errs = append(errs, fmt.Errorf("data: %w", err))
	}

	return params, errors.Join(errs...)
}

// backend returns the live connection after applying the rate limit
func (c *EVMClient) backend(ctx context.Context, op string) (ethBackend, error) {
	c.mu.RLock()
	eth := c.eth
	c.mu.RUnlock()
	if eth == nil {
		return nil, c.connErr(op, ErrNotConnected)
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	return eth, nil
}

func (c *EVMClient) wait(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return c.connErr(op, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

func (c *EVMClient) connErr(op string, err error) error {
	return &ConnectionError{Ledger: c.name, Op: op, Err: err}
}

// The methods below make *EVMClient usable as a go-ethereum contract backend
// for the destination ledger. Errors are wrapped in *ConnectionError except
// where the node reports a contract-level failure, which is returned as is.

func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	eth, err := c.backend(ctx, "eth_chainId")
	if err != nil {
		return nil, err
	}
	id, err := eth.ChainID(ctx)
	metrics.RecordRPCCall(c.name, "eth_chainId", err)
	if err != nil {
		return nil, c.connErr("eth_chainId", err)
	}
	return id, nil
}

// CallContract executes an eth_call. A revert is returned unwrapped.
func (c *EVMClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	eth, err := c.backend(ctx, "eth_call")
	if err != nil {
		return nil, err
	}
	out, err := eth.CallContract(ctx, msg, blockNumber)
	metrics.RecordRPCCall(c.name, "eth_call", err)
	return out, err
}

// EstimateGas estimates the gas of msg. A revert is returned unwrapped.
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	eth, err := c.backend(ctx, "eth_estimateGas")
	if err != nil {
		return 0, err
	}
	gas, err := eth.EstimateGas(ctx, msg)
	metrics.RecordRPCCall(c.name, "eth_estimateGas", err)
	return gas, err
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	eth, err := c.backend(ctx, "eth_gasPrice")
	if err != nil {
		return nil, err
	}
	price, err := eth.SuggestGasPrice(ctx)
	metrics.RecordRPCCall(c.name, "eth_gasPrice", err)
	if err != nil {
		return nil, c.connErr("eth_gasPrice", err)
	}
	return price, nil
}

func (c *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	eth, err := c.backend(ctx, "eth_getTransactionCount")
	if err != nil {
		return 0, err
	}
	nonce, err := eth.PendingNonceAt(ctx, account)
	metrics.RecordRPCCall(c.name, "eth_getTransactionCount", err)
	if err != nil {
		return 0, c.connErr("eth_getTransactionCount", err)
	}
	return nonce, nil
}

// SendTransaction broadcasts a signed transaction. Node rejections
// (nonce too low, underpriced) are returned unwrapped.
func (c *EVMClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	eth, err := c.backend(ctx, "eth_sendRawTransaction")
	if err != nil {
		return err
	}
	err = eth.SendTransaction(ctx, tx)
	metrics.RecordRPCCall(c.name, "eth_sendRawTransaction", err)
	return err
}

// TransactionReceipt returns ethereum.NotFound unwrapped while the transaction is pending
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	eth, err := c.backend(ctx, "eth_getTransactionReceipt")
	if err != nil {
		return nil, err
	}
	receipt, err := eth.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		metrics.RecordRPCCall(c.name, "eth_getTransactionReceipt", nil)
		return nil, err
	}
	metrics.RecordRPCCall(c.name, "eth_getTransactionReceipt", err)
	if err != nil {
		return nil, c.connErr("eth_getTransactionReceipt", err)
	}
	return receipt, nil
}

func (c *EVMClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	eth, err := c.backend(ctx, "eth_getCode")
	if err != nil {
		return nil, err
	}
	code, err := eth.CodeAt(ctx, account, blockNumber)
	metrics.RecordRPCCall(c.name, "eth_getCode", err)
	if err != nil {
		return nil, c.connErr("eth_getCode", err)
	}
	return code, nil
}
