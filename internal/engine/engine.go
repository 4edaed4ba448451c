// Package engine runs the copy loop: it supervises one streaming task per
// (owner, watched wallet) pair, turns classified trades into signed
// transactions for the follower, and records volume and fees.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/observability"
	"stellar-copy-engine/internal/signing"
	"stellar-copy-engine/internal/storage"
	"stellar-copy-engine/internal/xdr"
)

// txValidity bounds how long a built transaction stays submittable.
const txValidity = 900 * time.Second

// Gateway is the slice of the Horizon client the engine needs.
type Gateway interface {
	Account(ctx context.Context, address string) (*domain.AccountSnapshot, error)
	RecommendedFee(ctx context.Context) int64
	SubmitAsync(ctx context.Context, envelopeB64 string) (string, error)
	AwaitConfirmation(ctx context.Context, hash string) (*horizon.TransactionRecord, error)
	StreamTransactions(ctx context.Context, address, cursor string) <-chan horizon.StreamEvent
	NativeEquivalent(ctx context.Context, asset domain.Asset, amount decimal.Decimal) (decimal.Decimal, error)
}

// Classifier extracts trade signals from a confirmed transaction.
type Classifier interface {
	Classify(ctx context.Context, tx *horizon.TransactionRecord, watched string) ([]domain.TradeSignal, error)
}

// Planner sizes a classic trade signal into a balance-checked order.
type Planner interface {
	Plan(ctx context.Context, sub *domain.WatchSubscription, sig *domain.TradeSignal, follower string, feeRate decimal.Decimal) (*domain.ScaledOrder, error)
}

// CallRewriter rebuilds a whitelisted contract call for the follower.
type CallRewriter interface {
	Rewrite(ctx context.Context, sig *domain.TradeSignal, sub *domain.WatchSubscription, follower string) (*xdr.TransactionEnvelope, error)
}

// FeeLedger resolves fee tiers and records trade volume and referral shares.
type FeeLedger interface {
	FeeRate(ctx context.Context, ownerID string) (decimal.Decimal, error)
	RecordTrade(ctx context.Context, ownerID, txHash string, nativeVolume, fee decimal.Decimal) error
}

// Housekeeper frees the follower's locked reserves after a trade.
type Housekeeper interface {
	RemoveIdleTrustlines(ctx context.Context, ownerID, address string) error
}

// Options wires the engine's dependencies.
type Options struct {
	Gateway    Gateway
	Classifier Classifier
	Planner    Planner
	Rewriter   CallRewriter
	Signer     signing.Signer
	Ledger     FeeLedger
	// Housekeeper is optional; nil disables post-trade trustline cleanup.
	Housekeeper Housekeeper

	Subscriptions storage.SubscriptionStore
	Cursors       storage.CursorStore
	Users         storage.UserStore

	// Passphrase identifies the network every hash is computed for.
	Passphrase string
	// TradeMemo is attached to every copied trade.
	TradeMemo string
	// FeeAccount receives usage fees; empty disables the fee payment.
	FeeAccount string

	// RestartBackoff is the wait between wallet-task restarts; MaxRestarts
	// bounds consecutive restarts, 0 meaning unbounded.
	RestartBackoff time.Duration
	MaxRestarts    int

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

type taskKey struct {
	ownerID string
	watched string
}

type task struct {
	cancel context.CancelFunc
}

// Engine supervises the per-wallet copy tasks.
type Engine struct {
	gw          Gateway
	classifier  Classifier
	planner     Planner
	rewriter    CallRewriter
	signer      signing.Signer
	ledger      FeeLedger
	housekeeper Housekeeper

	subs    storage.SubscriptionStore
	cursors storage.CursorStore
	users   storage.UserStore

	passphrase string
	memo       string
	feeAccount string
	backoff    time.Duration
	maxRetries int

	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	tasks map[taskKey]*task
	group *errgroup.Group
}

// New builds an engine from its wired dependencies.
func New(opts Options) *Engine {
	backoff := opts.RestartBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Engine{
		gw:          opts.Gateway,
		classifier:  opts.Classifier,
		planner:     opts.Planner,
		rewriter:    opts.Rewriter,
		signer:      opts.Signer,
		ledger:      opts.Ledger,
		housekeeper: opts.Housekeeper,
		subs:        opts.Subscriptions,
		cursors:     opts.Cursors,
		users:       opts.Users,
		passphrase:  opts.Passphrase,
		memo:        opts.TradeMemo,
		feeAccount:  opts.FeeAccount,
		backoff:     backoff,
		maxRetries:  opts.MaxRestarts,
		metrics:     opts.Metrics,
		log:         opts.Logger.With().Str("component", "engine").Logger(),
		now:         time.Now,
		tasks:       make(map[taskKey]*task),
	}
}

// StartAll launches one streaming task per active subscription. Already
// running pairs are left alone.
func (e *Engine) StartAll(ctx context.Context) error {
	subs, err := e.subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.group == nil {
		e.group = &errgroup.Group{}
	}
	for _, sub := range subs {
		e.startLocked(ctx, sub.OwnerID, sub.WatchedAddress)
	}
	return nil
}

// Start launches the streaming task for one (owner, watched wallet) pair.
func (e *Engine) Start(ctx context.Context, ownerID, watched string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.group == nil {
		e.group = &errgroup.Group{}
	}
	e.startLocked(ctx, ownerID, watched)
}

func (e *Engine) startLocked(ctx context.Context, ownerID, watched string) {
	key := taskKey{ownerID: ownerID, watched: watched}
	if _, running := e.tasks[key]; running {
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	e.tasks[key] = &task{cancel: cancel}
	if e.metrics != nil {
		e.metrics.ActiveWalletTasks.Inc()
	}
	e.group.Go(func() error {
		defer func() {
			e.mu.Lock()
			delete(e.tasks, key)
			e.mu.Unlock()
			if e.metrics != nil {
				e.metrics.ActiveWalletTasks.Dec()
			}
		}()
		e.runTask(taskCtx, ownerID, watched)
		return nil
	})
}

// Stop cancels the task for one pair. It does not wait for the task to
// unwind; StopAll does.
func (e *Engine) Stop(ownerID, watched string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[taskKey{ownerID: ownerID, watched: watched}]; ok {
		t.cancel()
	}
}

// StopAll cancels every task and waits for all of them to unwind.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for _, t := range e.tasks {
		t.cancel()
	}
	group := e.group
	e.mu.Unlock()
	if group != nil {
		_ = group.Wait()
	}
}

// runTask streams one watched wallet until cancelled, restarting the stream
// with backoff after transport errors.
func (e *Engine) runTask(ctx context.Context, ownerID, watched string) {
	log := e.log.With().Str("owner", ownerID).Str("watched", watched).Logger()
	restarts := 0
	for {
		err := e.streamOnce(ctx, ownerID, watched, log)
		if ctx.Err() != nil {
			return
		}
		restarts++
		if e.maxRetries > 0 && restarts > e.maxRetries {
			log.Error().Err(err).Int("restarts", restarts-1).Msg("wallet task gave up after repeated stream failures")
			return
		}
		if e.metrics != nil {
			e.metrics.StreamRestarts.WithLabelValues("stream_error").Inc()
		}
		log.Warn().Err(err).Dur("backoff", e.backoff).Msg("stream ended, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.backoff):
		}
	}
}

// streamOnce opens the stream at the persisted cursor and handles events
// until the stream ends. The cursor advances only after a transaction has
// been handled.
func (e *Engine) streamOnce(ctx context.Context, ownerID, watched string, log zerolog.Logger) error {
	user, err := e.users.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", ownerID, err)
	}
	cursor, err := e.cursors.Get(ctx, watched)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load cursor %s: %w", watched, err)
	}

	for ev := range e.gw.StreamTransactions(ctx, watched, cursor) {
		if ev.Err != nil {
			return ev.Err
		}
		if e.metrics != nil {
			e.metrics.TransactionsStreamed.Inc()
		}
		e.handleTransaction(ctx, ownerID, watched, user.PublicKey, ev.Tx, log)
		if err := e.cursors.Set(ctx, watched, ev.Tx.PagingToken); err != nil {
			log.Error().Err(err).Str("cursor", ev.Tx.PagingToken).Msg("persisting cursor failed")
		}
	}
	return ctx.Err()
}

// handleTransaction classifies one confirmed transaction and copies each
// signal. A failed copy is reported and does not stop the stream.
func (e *Engine) handleTransaction(ctx context.Context, ownerID, watched, follower string, tx *horizon.TransactionRecord, log zerolog.Logger) {
	signals, err := e.classifier.Classify(ctx, tx, watched)
	if err != nil {
		log.Error().Err(err).Str("tx", tx.Hash).Msg("classification failed, skipping transaction")
		return
	}
	for i := range signals {
		sig := &signals[i]
		if e.metrics != nil {
			e.metrics.RecordSignal(string(sig.Kind))
		}
		if err := e.copyTrade(ctx, ownerID, watched, follower, sig, log); err != nil {
			log.Error().Err(err).
				Str("tx", tx.Hash).
				Str("kind", string(sig.Kind)).
				Str("source_asset", sig.SourceAsset.String()).
				Str("dest_asset", sig.DestAsset.String()).
				Str("original_send", sig.SendAmount.String()).
				Msg("copy failed")
		}
	}
}
