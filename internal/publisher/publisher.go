package publisher

import (
	"context"

	"github.com/NethermindEth/bridge-listener/internal/types"
)

// RecordType is the envelope type of submission records
const RecordType = "bridge.submission"

// Publisher forwards submission outcomes to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, rec SubmissionRecord) error
	Close() error
}

// SubmissionRecord is the published view of one submission
type SubmissionRecord struct {
	ListenerID       string `json:"listener_id"`
	SourceNonce      string `json:"source_nonce"`
	Recipient        string `json:"recipient"`
	Amount           string `json:"amount"`
	SourceTxHash     string `json:"source_tx_hash"`
	SourceBlock      uint64 `json:"source_block"`
	Succeeded        bool   `json:"succeeded"`
	DestinationTxRef string `json:"destination_tx_ref,omitempty"`
	Error            string `json:"error,omitempty"`
}

// NewSubmissionRecord combines an accepted event with its submission result
func NewSubmissionRecord(listenerID string, ev types.ValidatedEvent, res types.SubmissionResult) SubmissionRecord {
	rec := SubmissionRecord{
		ListenerID:       listenerID,
		SourceNonce:      res.SourceNonce,
		Recipient:        types.FormatAddress(ev.Recipient),
		Amount:           ev.Amount.Dec(),
		SourceTxHash:     ev.SourceTxHash.Hex(),
		SourceBlock:      ev.BlockNumber,
		Succeeded:        res.Succeeded,
		DestinationTxRef: res.DestinationTxRef,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Noop drops every record
type Noop struct{}

func (Noop) Publish(context.Context, SubmissionRecord) error { return nil }
func (Noop) Close() error                                    { return nil }
