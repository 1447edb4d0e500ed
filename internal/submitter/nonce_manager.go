package submitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reports the next account nonce including pending transactions
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out account nonces for transaction senders.
// The first request per sender is seeded from the node's pending nonce.
type NonceManager struct {
	mu     sync.Mutex
	source NonceSource
	nonces map[common.Address]uint64 // sender -> next nonce
}

func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source: source,
		nonces: make(map[common.Address]uint64),
	}
}

// Next returns the nonce to use for the sender's next transaction
func (nm *NonceManager) Next(ctx context.Context, sender common.Address) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, ok := nm.nonces[sender]; !ok {
		nonce, err := nm.source.PendingNonceAt(ctx, sender)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce for %s: %w", sender.Hex(), err)
		}
		nm.nonces[sender] = nonce
	}

	current := nm.nonces[sender]
	nm.nonces[sender]++
	return current, nil
}

// Reset forgets the cached nonce so the next call re-reads it from the node.
// Call it after a transaction that consumed a nonce was not broadcast.
func (nm *NonceManager) Reset(sender common.Address) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.nonces, sender)
}
