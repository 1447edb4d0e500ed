package processor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recipient = common.HexToAddress("0x00000000000000000000000000000000000000c1")

func rawEvent(nonce, amount any) types.RawEvent {
	return types.RawEvent{
		BlockNumber: 110,
		TxHash:      common.HexToHash("0xabc"),
		LogIndex:    0,
		Params: map[string]any{
			FieldNonce:     nonce,
			FieldRecipient: recipient,
			FieldAmount:    amount,
		},
	}
}

func newTestProcessor() (*EventProcessor, *MemoryNonceStore, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := NewMemoryNonceStore()
	return NewEventProcessor(store, logger), store, hook
}

func TestProcessAccepted(t *testing.T) {
	p, store, hook := newTestProcessor()

	out, err := p.Process(context.Background(), rawEvent(big.NewInt(101), big.NewInt(500000000)))
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAccepted, out.Kind)
	require.NotNil(t, out.Event)

	assert.Equal(t, "101", out.Nonce)
	assert.Equal(t, uint64(101), out.Event.Nonce.Uint64())
	assert.Equal(t, uint64(500000000), out.Event.Amount.Uint64())
	assert.Equal(t, recipient, out.Event.Recipient)
	assert.Equal(t, common.HexToHash("0xabc"), out.Event.SourceTxHash)
	assert.Equal(t, uint64(110), out.Event.BlockNumber)
	assert.True(t, store.Contains("101"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "101", entry.Data["nonce"])
	assert.Equal(t, "500000000", entry.Data["amount"])
	assert.Equal(t, recipient.Hex(), entry.Data["recipient"])
}

func TestProcessDedup(t *testing.T) {
	t.Run("first occurrence accepted, repeats duplicate", func(t *testing.T) {
		p, store, _ := newTestProcessor()

		sequence := []int64{1, 2, 1, 3, 2, 2, 4, 1}
		want := []types.OutcomeKind{
			types.OutcomeAccepted, types.OutcomeAccepted, types.OutcomeDuplicate, types.OutcomeAccepted,
			types.OutcomeDuplicate, types.OutcomeDuplicate, types.OutcomeAccepted, types.OutcomeDuplicate,
		}

		for i, nonce := range sequence {
			out, err := p.Process(context.Background(), rawEvent(big.NewInt(nonce), big.NewInt(10)))
			require.NoError(t, err)
			assert.Equal(t, want[i], out.Kind, "event %d (nonce %d)", i, nonce)
			if out.Kind == types.OutcomeDuplicate {
				assert.Nil(t, out.Event)
				assert.Equal(t, big.NewInt(nonce).String(), out.Nonce)
			}
		}
		assert.Equal(t, 4, store.Len())
	})

	t.Run("nonce encodings share one key", func(t *testing.T) {
		p, _, _ := newTestProcessor()

		out, err := p.Process(context.Background(), rawEvent(big.NewInt(255), big.NewInt(1)))
		require.NoError(t, err)
		require.Equal(t, types.OutcomeAccepted, out.Kind)

		for _, nonce := range []any{"255", "0xff", uint64(255), 255, uint256.NewInt(255)} {
			out, err := p.Process(context.Background(), rawEvent(nonce, big.NewInt(1)))
			require.NoError(t, err)
			assert.Equal(t, types.OutcomeDuplicate, out.Kind, "nonce %v (%T)", nonce, nonce)
		}
	})

	t.Run("duplicate logged at debug", func(t *testing.T) {
		p, _, hook := newTestProcessor()
		_, err := p.Process(context.Background(), rawEvent(big.NewInt(7), big.NewInt(1)))
		require.NoError(t, err)
		_, err = p.Process(context.Background(), rawEvent(big.NewInt(7), big.NewInt(1)))
		require.NoError(t, err)

		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	})
}

func TestProcessMalformed(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)

	tests := []struct {
		name   string
		params map[string]any
		field  string
	}{
		{"missing nonce", map[string]any{FieldRecipient: recipient, FieldAmount: big.NewInt(1)}, FieldNonce},
		{"missing recipient", map[string]any{FieldNonce: big.NewInt(1), FieldAmount: big.NewInt(1)}, FieldRecipient},
		{"missing amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient}, FieldAmount},
		{"nil amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: nil}, FieldAmount},
		{"negative amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: big.NewInt(-1)}, FieldAmount},
		{"negative int amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: -1}, FieldAmount},
		{"negative string amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: "-1"}, FieldAmount},
		{"non-numeric amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: "lots"}, FieldAmount},
		{"float amount", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: 1.5}, FieldAmount},
		{"amount over 256 bits", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: recipient, FieldAmount: tooBig}, FieldAmount},
		{"non-numeric nonce", map[string]any{FieldNonce: "abc", FieldRecipient: recipient, FieldAmount: big.NewInt(1)}, FieldNonce},
		{"recipient wrong type", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: 42, FieldAmount: big.NewInt(1)}, FieldRecipient},
		{"recipient bad hex", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: "0x1234", FieldAmount: big.NewInt(1)}, FieldRecipient},
		{"zero recipient", map[string]any{FieldNonce: big.NewInt(1), FieldRecipient: common.Address{}, FieldAmount: big.NewInt(1)}, FieldRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, hook := newTestProcessor()

			out, err := p.Process(context.Background(), types.RawEvent{BlockNumber: 5, Params: tt.params})
			require.NoError(t, err)
			assert.Equal(t, types.OutcomeMalformed, out.Kind)
			assert.Nil(t, out.Event)

			var malformedErr *types.MalformedEventError
			require.ErrorAs(t, out.Err, &malformedErr)
			assert.Equal(t, tt.field, malformedErr.Field)
			assert.NotEmpty(t, malformedErr.Reason)

			assert.Zero(t, store.Len())
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		})
	}
}

func TestValidateEncodings(t *testing.T) {
	tests := []struct {
		name      string
		nonce     any
		amount    any
		recipient any
		wantNonce string
	}{
		{"big.Int value", *big.NewInt(9), *big.NewInt(1), recipient, "9"},
		{"uint256", uint256.NewInt(9), uint256.NewInt(1), recipient, "9"},
		{"decimal strings", "9", " 1000 ", recipient, "9"},
		{"hex strings", "0x09", "0X10", recipient, "9"},
		{"go integers", uint32(9), int64(0), recipient, "9"},
		{"string recipient", 9, 1, "0x00000000000000000000000000000000000000C1", "9"},
		{"padded recipient", 9, 1, "0x00000000000000000000000000000000000000000000000000000000000000c1", "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, malformedErr := Validate(types.RawEvent{Params: map[string]any{
				FieldNonce:     tt.nonce,
				FieldRecipient: tt.recipient,
				FieldAmount:    tt.amount,
			}})
			require.Nil(t, malformedErr)
			assert.Equal(t, tt.wantNonce, ev.NonceKey())
			assert.Equal(t, recipient, ev.Recipient)
		})
	}
}

func TestProcessZeroAmountIsWellFormed(t *testing.T) {
	p, _, _ := newTestProcessor()
	out, err := p.Process(context.Background(), rawEvent(big.NewInt(1), big.NewInt(0)))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAccepted, out.Kind)
	assert.True(t, out.Event.Amount.IsZero())
}

func TestProcessConcurrentSameNonce(t *testing.T) {
	p, store, _ := newTestProcessor()

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Process(context.Background(), rawEvent(big.NewInt(42), big.NewInt(1)))
			if err != nil || out.Kind != types.OutcomeAccepted {
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, store.Len())
}

type failingStore struct{}

func (failingStore) MarkIfAbsent(context.Context, string) (bool, error) {
	return false, errors.New("connection reset by peer")
}
func (failingStore) Close() error { return nil }

func TestProcessStoreFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewEventProcessor(failingStore{}, logger)

	_, err := p.Process(context.Background(), rawEvent(big.NewInt(1), big.NewInt(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce store")

	// malformed events never reach the store
	out, err := p.Process(context.Background(), rawEvent(nil, big.NewInt(1)))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeMalformed, out.Kind)
}
