package processor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// Event parameter names read from RawEvent.Params
const (
	FieldNonce     = "nonce"
	FieldRecipient = "recipient"
	FieldAmount    = "amount"
)

// EventProcessor validates raw source events and deduplicates them by nonce
type EventProcessor struct {
	store  NonceStore
	logger logrus.FieldLogger
}

// NewEventProcessor creates a processor backed by store
func NewEventProcessor(store NonceStore, logger logrus.FieldLogger) *EventProcessor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EventProcessor{store: store, logger: logger}
}

// Process type-checks raw and, if well-formed, records its nonce.
// The returned error is non-nil only when the nonce store could not be reached;
// in that case nothing was recorded and the event must be processed again.
func (p *EventProcessor) Process(ctx context.Context, raw types.RawEvent) (types.Outcome, error) {
	fields := logrus.Fields{
		"block": raw.BlockNumber,
		"tx":    raw.TxHash.Hex(),
		"index": raw.LogIndex,
	}

	ev, malformed := Validate(raw)
	if malformed != nil {
		p.logger.WithFields(fields).WithField("error", malformed).Warn("⚠️  Skipping malformed event")
		return types.Malformed(malformed.Field, malformed.Reason), nil
	}

	nonce := ev.NonceKey()
	fields["nonce"] = nonce

	fresh, err := p.store.MarkIfAbsent(ctx, nonce)
	if err != nil {
		return types.Outcome{}, fmt.Errorf("nonce store: %w", err)
	}
	if !fresh {
		p.logger.WithFields(fields).Debug("🔁 Nonce already processed, skipping")
		return types.Duplicate(nonce), nil
	}

	p.logger.WithFields(fields).WithFields(logrus.Fields{
		"recipient": ev.Recipient.Hex(),
		"amount":    ev.Amount.Dec(),
	}).Info("✅ Event accepted")
	return types.Accepted(ev), nil
}

// Validate extracts and type-checks nonce, recipient and amount. It has no side effects.
func Validate(raw types.RawEvent) (types.ValidatedEvent, *types.MalformedEventError) {
	nonce, err := uintParam(raw.Params, FieldNonce)
	if err != nil {
		return types.ValidatedEvent{}, err
	}
	recipient, err := addressParam(raw.Params, FieldRecipient)
	if err != nil {
		return types.ValidatedEvent{}, err
	}
	amount, err := uintParam(raw.Params, FieldAmount)
	if err != nil {
		return types.ValidatedEvent{}, err
	}

	return types.ValidatedEvent{
		Nonce:        nonce,
		Recipient:    recipient,
		Amount:       amount,
		SourceTxHash: raw.TxHash,
		BlockNumber:  raw.BlockNumber,
		LogIndex:     raw.LogIndex,
	}, nil
}

func malformed(field, format string, args ...any) *types.MalformedEventError {
	return &types.MalformedEventError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func uintParam(params map[string]any, field string) (*uint256.Int, *types.MalformedEventError) {
	v, ok := params[field]
	if !ok || v == nil {
		return nil, malformed(field, "missing")
	}

	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, malformed(field, "missing")
		}
		return fromBig(field, x)
	case big.Int:
		return fromBig(field, &x)
	case *uint256.Int:
		if x == nil {
			return nil, malformed(field, "missing")
		}
		return x.Clone(), nil
	case uint:
		return uint256.NewInt(uint64(x)), nil
	case uint8:
		return uint256.NewInt(uint64(x)), nil
	case uint16:
		return uint256.NewInt(uint64(x)), nil
	case uint32:
		return uint256.NewInt(uint64(x)), nil
	case uint64:
		return uint256.NewInt(x), nil
	case int:
		return fromInt64(field, int64(x))
	case int8:
		return fromInt64(field, int64(x))
	case int16:
		return fromInt64(field, int64(x))
	case int32:
		return fromInt64(field, int64(x))
	case int64:
		return fromInt64(field, x)
	case string:
		return fromString(field, x)
	default:
		return nil, malformed(field, "unsupported type %T", v)
	}
}

func fromBig(field string, x *big.Int) (*uint256.Int, *types.MalformedEventError) {
	if x.Sign() < 0 {
		return nil, malformed(field, "negative value %s", x)
	}
	u, overflow := uint256.FromBig(x)
	if overflow {
		return nil, malformed(field, "value exceeds 256 bits")
	}
	return u, nil
}

func fromInt64(field string, x int64) (*uint256.Int, *types.MalformedEventError) {
	if x < 0 {
		return nil, malformed(field, "negative value %d", x)
	}
	return uint256.NewInt(uint64(x)), nil
}

func fromString(field, s string) (*uint256.Int, *types.MalformedEventError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, malformed(field, "empty value")
	}
	if strings.HasPrefix(s, "-") {
		return nil, malformed(field, "negative value %s", s)
	}

	var (
		n  *big.Int
		ok bool
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, malformed(field, "not an integer: %q", s)
	}
	return fromBig(field, n)
}

func addressParam(params map[string]any, field string) (common.Address, *types.MalformedEventError) {
	v, ok := params[field]
	if !ok || v == nil {
		return common.Address{}, malformed(field, "missing")
	}

	var addr common.Address
	switch x := v.(type) {
	case common.Address:
		addr = x
	case *common.Address:
		if x == nil {
			return common.Address{}, malformed(field, "missing")
		}
		addr = *x
	case string:
		parsed, err := types.ToEVMAddress(x)
		if err != nil {
			return common.Address{}, malformed(field, "%v", err)
		}
		addr = parsed
	default:
		return common.Address{}, malformed(field, "unsupported type %T", v)
	}

	if addr == (common.Address{}) {
		return common.Address{}, malformed(field, "zero address")
	}
	return addr, nil
}
