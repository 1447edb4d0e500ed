package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NethermindEth/bridge-listener/internal/config"
	"github.com/NethermindEth/bridge-listener/internal/ledger"
	"github.com/NethermindEth/bridge-listener/internal/metrics"
	"github.com/NethermindEth/bridge-listener/internal/publisher"
	"github.com/NethermindEth/bridge-listener/internal/submitter"
	"github.com/NethermindEth/bridge-listener/internal/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInitialization wraps every failure that prevents the listener from starting
	ErrInitialization = errors.New("listener initialization failed")
	// ErrStopped is returned by Initialize when a stop arrived before it completed
	ErrStopped = errors.New("listener stopped")
)

// EventProcessor validates and deduplicates raw source events
type EventProcessor interface {
	Process(ctx context.Context, raw types.RawEvent) (types.Outcome, error)
}

// Components are the collaborators a BridgeListener drives
type Components struct {
	Source      ledger.Client
	Destination ledger.Client
	Processor   EventProcessor
	Submitter   submitter.Submitter
	Publisher   publisher.Publisher // optional
}

// Target identifies the source event being scanned
type Target struct {
	Contract common.Address
	Event    abi.Event
}

// BridgeListener polls the source ledger for lock events and submits one
// unlock per new nonce on the destination ledger.
type BridgeListener struct {
	id     string
	cfg    config.ListenerConfig
	target Target
	c      Components
	logger logrus.FieldLogger

	errBackoff *backoff.ExponentialBackOff

	mu          sync.RWMutex
	state       State
	cursor      uint64
	nextDelay   time.Duration
	initialized bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewBridgeListener creates a listener; nothing is contacted until Initialize or Run
func NewBridgeListener(cfg config.ListenerConfig, target Target, c Components, logger logrus.FieldLogger) *BridgeListener {
	if c.Publisher == nil {
		c.Publisher = publisher.Noop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	id := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ErrorBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	return &BridgeListener{
		id:         id,
		cfg:        cfg,
		target:     target,
		c:          c,
		logger:     logger.WithField("listener", id),
		errBackoff: b,
		state:      StateInitializing,
		stopCh:     make(chan struct{}),
	}
}

// ID returns the instance id used in logs and published records
func (l *BridgeListener) ID() string { return l.id }

// Cursor returns the last fully scanned source block
func (l *BridgeListener) Cursor() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

// State returns the current lifecycle state
func (l *BridgeListener) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// NextDelay returns the wait chosen after the most recent scan cycle
func (l *BridgeListener) NextDelay() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextDelay
}

// Stop asks the listener to stop. The range being processed, if any, is finished first.
func (l *BridgeListener) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *BridgeListener) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func (l *BridgeListener) advanceCursor(to uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if to > l.cursor {
		l.cursor = to
	}
	metrics.ScanCursor.Set(float64(l.cursor))
}

// Initialize connects both ledgers, prepares the submitter and sets the
// starting cursor. Each connection is attempted up to ConnectAttempts times.
// Stop or ctx cancellation aborts it with ErrStopped.
func (l *BridgeListener) Initialize(ctx context.Context) error {
	l.setState(StateInitializing)

	ctx, cancel := l.withStop(ctx)
	defer cancel()

	for _, client := range []ledger.Client{l.c.Source, l.c.Destination} {
		err := l.retry(ctx, "connect to "+client.Name(), func() error {
			return client.Connect(ctx)
		})
		if err != nil {
			return l.initFailed(ctx, err)
		}
	}

	if p, ok := l.c.Submitter.(submitter.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return l.initFailed(ctx, err)
		}
	}

	cursor, err := l.startingCursor(ctx)
	if err != nil {
		return l.initFailed(ctx, err)
	}

	l.mu.Lock()
	l.cursor = cursor
	l.initialized = true
	l.mu.Unlock()
	metrics.ScanCursor.Set(float64(cursor))

	l.logger.WithFields(logrus.Fields{
		"source":      l.c.Source.Name(),
		"destination": l.c.Destination.Name(),
		"contract":    l.target.Contract.Hex(),
		"event":       l.target.Event.Name,
		"cursor":      cursor,
	}).Info("🚀 Bridge listener initialized")
	return nil
}

// withStop derives a context that is also cancelled by Stop
func (l *BridgeListener) withStop(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (l *BridgeListener) initFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		l.setState(StateStopped)
		l.logger.WithField("error", err).Info("🛑 Stop requested during initialization")
		return ErrStopped
	}
	return fmt.Errorf("%w: %w", ErrInitialization, err)
}

func (l *BridgeListener) startingCursor(ctx context.Context) (uint64, error) {
	if l.cfg.StartBlock != nil {
		return *l.cfg.StartBlock, nil
	}

	var head uint64
	err := l.retry(ctx, "read "+l.c.Source.Name()+" head", func() error {
		var err error
		head, err = l.c.Source.CurrentHeight(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return l.safeHeight(head), nil
}

// retry runs op until it succeeds or ConnectAttempts is exhausted
func (l *BridgeListener) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.ConnectRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := l.cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	attempt := 0
	notify := func(err error, next time.Duration) {
		l.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"of":      attempts,
			"error":   err,
		}).Warnf("⚠️  Failed to %s, retrying in %s", what, next)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, policy, notify)
}

// safeHeight is head minus the confirmation lag, saturating at zero
func (l *BridgeListener) safeHeight(head uint64) uint64 {
	if head <= l.cfg.ConfirmationBlocks {
		return 0
	}
	return head - l.cfg.ConfirmationBlocks
}

// Run initializes the listener if needed and polls until ctx is cancelled or Stop is called.
// It only returns an error when initialization fails for a reason other than a stop.
func (l *BridgeListener) Run(ctx context.Context) error {
	l.mu.RLock()
	initialized := l.initialized
	l.mu.RUnlock()
	if !initialized {
		if err := l.Initialize(ctx); err != nil {
			l.setState(StateStopped)
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
	defer l.setState(StateStopped)

	l.logger.Info("📭 Starting event polling")
	for {
		if l.stopRequested(ctx) {
			l.logger.WithField("cursor", l.Cursor()).Info("🛑 Stop requested, listener stopped")
			return nil
		}

		l.setState(StateScanning)
		delay := l.scheduleNext(l.scanOnce(ctx))

		l.setState(StateIdle)
		if !l.idle(ctx, delay) {
			l.logger.WithField("cursor", l.Cursor()).Info("🛑 Stop requested, listener stopped")
			return nil
		}
	}
}

func (l *BridgeListener) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

// idle waits for d; it returns false if a stop was requested meanwhile
func (l *BridgeListener) idle(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// scheduleNext picks the idle delay after a cycle: the poll interval after
// success, the next exponential backoff step after a failure.
func (l *BridgeListener) scheduleNext(cycleErr error) time.Duration {
	var delay time.Duration
	if cycleErr == nil {
		l.errBackoff.Reset()
		delay = l.cfg.PollInterval
	} else {
		delay = l.errBackoff.NextBackOff()
		if delay == backoff.Stop {
			delay = l.cfg.MaxBackoff
		}

		kind := "processing"
		if ledger.IsConnectionError(cycleErr) {
			kind = "connection"
		}
		metrics.CycleErrorsTotal.WithLabelValues(kind).Inc()

		l.logger.WithFields(logrus.Fields{
			"cursor": l.Cursor(),
			"kind":   kind,
			"error":  cycleErr,
		}).Warnf("⚠️  Scan cycle failed, retrying in %s", delay)
	}

	l.mu.Lock()
	l.nextDelay = delay
	l.mu.Unlock()
	metrics.BackoffSeconds.Set(delay.Seconds())
	return delay
}

// scanOnce runs one Scanning step: every block in [cursor+1, head-lag] is read,
// in chunks of at most MaxBlockRange blocks. The cursor moves to the end of a
// chunk only after every event in it has been processed and submitted; on any
// error it is left at the end of the last completed chunk.
func (l *BridgeListener) scanOnce(ctx context.Context) error {
	started := time.Now()

	head, err := l.c.Source.CurrentHeight(ctx)
	if err != nil {
		return err
	}
	metrics.SourceHead.Set(float64(head))

	cursor := l.Cursor()
	latest := l.safeHeight(head)
	if latest <= cursor {
		l.logger.WithFields(logrus.Fields{
			"cursor": cursor,
			"head":   head,
		}).Debug("⏳ No new blocks to scan")
		return nil
	}

	for from := cursor + 1; from <= latest; {
		to := latest
		if l.cfg.MaxBlockRange > 0 && to-from+1 > l.cfg.MaxBlockRange {
			to = from + l.cfg.MaxBlockRange - 1
		}

		if err := l.scanRange(ctx, head, from, to); err != nil {
			return err
		}
		from = to + 1

		if from <= latest && l.stopRequested(ctx) {
			l.logger.WithFields(logrus.Fields{
				"cursor": to,
				"latest": latest,
			}).Info("🛑 Stop requested, leaving remaining blocks for the next run")
			return nil
		}
	}

	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	return nil
}

// scanRange reads, processes and submits the events of [from, to], then advances the cursor to `to`
func (l *BridgeListener) scanRange(ctx context.Context, head, from, to uint64) error {
	logger := l.logger.WithFields(logrus.Fields{
		"ledger": l.c.Source.Name(),
		"from":   from,
		"to":     to,
	})
	logger.WithFields(logrus.Fields{
		"head": head,
		"conf": l.cfg.ConfirmationBlocks,
	}).Infof("🧭 Scanning %s blocks %d-%d", l.c.Source.Name(), from, to)

	events, err := l.c.Source.ReadEvents(ctx, ledger.Query{
		Contract:  l.target.Contract,
		Event:     l.target.Event,
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return err
	}

	if len(events) == 0 {
		logger.Info("📭 No events found")
	} else {
		logger.Infof("📩 Found %d %s events", len(events), l.target.Event.Name)
	}

	// A stop arriving now must not abandon the range half way
	drainCtx := context.WithoutCancel(ctx)
	for _, raw := range events {
		out, err := l.c.Processor.Process(drainCtx, raw)
		if err != nil {
			return fmt.Errorf("processing event at block %d index %d: %w", raw.BlockNumber, raw.LogIndex, err)
		}
		metrics.EventsTotal.WithLabelValues(out.Kind.String()).Inc()

		if out.Kind == types.OutcomeAccepted {
			l.submit(drainCtx, *out.Event)
		}
	}

	l.advanceCursor(to)
	logger.WithField("cursor", to).Debug("✅ Range processed")
	return nil
}

func (l *BridgeListener) submit(ctx context.Context, ev types.ValidatedEvent) {
	res := l.c.Submitter.Submit(ctx, ev)

	logger := l.logger.WithFields(logrus.Fields{
		"nonce":     ev.NonceKey(),
		"recipient": ev.Recipient.Hex(),
		"amount":    ev.Amount.Dec(),
		"source_tx": ev.SourceTxHash.Hex(),
	})
	if res.Succeeded {
		metrics.SubmissionsTotal.WithLabelValues("succeeded").Inc()
		logger.WithField("tx", res.DestinationTxRef).Info("✅ Unlock submitted")
	} else {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		logger.WithField("error", res.Err).Error("❌ Unlock submission failed")
	}

	if err := l.c.Publisher.Publish(ctx, publisher.NewSubmissionRecord(l.id, ev, res)); err != nil {
		logger.WithField("error", err).Warn("⚠️  Failed to publish submission result")
	}
}
