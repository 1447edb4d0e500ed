package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/NethermindEth/bridge-listener/internal/config"
)

// NonceStore is the processed-nonce set. MarkIfAbsent is the dedup gate: it
// inserts nonce and reports true only for the first caller that inserts it.
type NonceStore interface {
	MarkIfAbsent(ctx context.Context, nonce string) (bool, error)
	Close() error
}

// MemoryNonceStore keeps processed nonces for the lifetime of the process.
// It never evicts.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]struct{}
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]struct{})}
}

func (s *MemoryNonceStore) MarkIfAbsent(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.nonces[nonce]; seen {
		return false, nil
	}
	s.nonces[nonce] = struct{}{}
	return true, nil
}

// Contains reports whether nonce has been recorded
func (s *MemoryNonceStore) Contains(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nonces[nonce]
	return ok
}

// Len returns the number of recorded nonces
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

func (s *MemoryNonceStore) Close() error { return nil }

// OpenNonceStore opens the backend selected by cfg.Backend
func OpenNonceStore(ctx context.Context, cfg config.DedupConfig) (NonceStore, error) {
	switch cfg.Backend {
	case config.DedupMemory, "":
		return NewMemoryNonceStore(), nil
	case config.DedupRedis:
		return NewRedisNonceStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.DedupPostgres:
		return NewPostgresNonceStore(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown nonce store backend %q", cfg.Backend)
	}
}
