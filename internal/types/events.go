package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RawEvent is a log entry read from the source ledger before validation.
// Params holds the decoded event arguments keyed by ABI name; values keep whatever
// Go type the decoder produced and are only type-checked by the processor.
type RawEvent struct {
	Address     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Params      map[string]any
}

// ValidatedEvent is a RawEvent that passed schema validation and dedup
type ValidatedEvent struct {
	Nonce        *uint256.Int
	Recipient    common.Address
	Amount       *uint256.Int
	SourceTxHash common.Hash
	BlockNumber  uint64
	LogIndex     uint
}

// NonceKey is the canonical dedup key of the event (decimal nonce)
func (e ValidatedEvent) NonceKey() string {
	return e.Nonce.Dec()
}

// OutcomeKind classifies the result of processing a single RawEvent
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeDuplicate
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is the processor's decision for one RawEvent.
//   - Accepted: Event is set
//   - Duplicate: Nonce is set
//   - Malformed: Err is a *MalformedEventError
type Outcome struct {
	Kind  OutcomeKind
	Event *ValidatedEvent
	Nonce string
	Err   error
}

// Accepted builds an accepted outcome
func Accepted(ev ValidatedEvent) Outcome {
	return Outcome{Kind: OutcomeAccepted, Event: &ev, Nonce: ev.NonceKey()}
}

// Duplicate builds a duplicate outcome for an already-processed nonce
func Duplicate(nonce string) Outcome {
	return Outcome{Kind: OutcomeDuplicate, Nonce: nonce}
}

// Malformed builds a malformed outcome
func Malformed(field, reason string) Outcome {
	return Outcome{Kind: OutcomeMalformed, Err: &MalformedEventError{Field: field, Reason: reason}}
}

// MalformedEventError reports a RawEvent that is missing a field or carries a value of the wrong type
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: field %q: %s", e.Field, e.Reason)
}

// SubmissionResult is the outcome of one destination action request.
// DestinationTxRef is set iff Succeeded; Err is set iff not Succeeded.
type SubmissionResult struct {
	Succeeded        bool
	SourceNonce      string
	DestinationTxRef string
	Err              error
}

// SubmissionSucceeded builds a successful submission result
func SubmissionSucceeded(nonce, txRef string) SubmissionResult {
	return SubmissionResult{Succeeded: true, SourceNonce: nonce, DestinationTxRef: txRef}
}

// SubmissionFailed builds a failed submission result
func SubmissionFailed(nonce string, err error) SubmissionResult {
	return SubmissionResult{Succeeded: false, SourceNonce: nonce, Err: err}
}
