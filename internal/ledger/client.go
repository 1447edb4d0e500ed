package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotConnected is returned by calls made before Connect succeeded
	ErrNotConnected = errors.New("ledger client not connected")
	// ErrHeadRegressed means the node reported a lower head than previously observed
	ErrHeadRegressed = errors.New("reported head height decreased")
	// ErrChainIDMismatch means the endpoint serves a different chain than configured
	ErrChainIDMismatch = errors.New("chain id mismatch")
	// ErrInvalidRange is returned by ReadEvents when FromBlock > ToBlock
	ErrInvalidRange = errors.New("invalid block range")
)

// Client is the ledger capability the listener depends on
type Client interface {
	Name() string
	Connect(ctx context.Context) error
	CurrentHeight(ctx context.Context) (uint64, error)
	ReadEvents(ctx context.Context, q Query) ([]types.RawEvent, error)
}

// Query selects the logs of one event emitted by one contract over [FromBlock, ToBlock]
type Query struct {
	Contract  common.Address
	Event     abi.Event
	FromBlock uint64
	ToBlock   uint64
}

// ConnectionError is the single failure kind for RPC and network problems.
// It is always transient from the listener's point of view.
type ConnectionError struct {
	Ledger string
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Ledger, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is (or wraps) a *ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
