// Package orchestrator sequences fund-moving transactions: submit, wait for
// confirmation, invalidate dependent cache entries, notify the user. One
// state machine runs per mutated position (or per token for first-time
// adds); a second submission while one is in flight fails fast.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityHub/internal/contracts"
	"liquidityHub/internal/model"
	"liquidityHub/internal/notify"
	"liquidityHub/internal/storage"
)

// Status is the per-mutation lifecycle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusPending    Status = "pendingConfirmation"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Request describes one mutating action.
type Request struct {
	Kind       model.MutationKind
	Chain      model.ChainDescriptor
	Token      model.TokenDescriptor
	PositionID *big.Int // nil for a first-time add
	Amount     *big.Int // nil for claimFee
}

// scopeKey identifies the mutual-exclusion scope of a request.
func (r Request) scopeKey() string {
	if r.PositionID != nil {
		return fmt.Sprintf("%d:pos:%s", r.Chain.ChainID, r.PositionID)
	}
	cfg, _ := r.Token.OnChain(r.Chain.ChainID)
	return fmt.Sprintf("%d:token:%s", r.Chain.ChainID, cfg.Address.Hex())
}

// Orchestrator runs mutation state machines. Cache invalidation is a
// mandatory post-condition of the succeeded transition and runs through the
// invalidate hook; failures never invalidate.
type Orchestrator struct {
	mu       sync.Mutex
	statuses map[string]Status

	signer        contracts.Signer
	sink          notify.Sink
	invalidate    func(Request)
	confirmations uint64
	logger        *zap.Logger

	// OnTransition, when set, observes every status change. Test hook and
	// UI binding point.
	OnTransition func(Request, Status)

	// History, when set, receives the terminal status of every submitted
	// transaction. Submission records come through the notification sink.
	History storage.History
}

// New builds an orchestrator.
func New(signer contracts.Signer, sink notify.Sink, invalidate func(Request), confirmations uint64, logger *zap.Logger) *Orchestrator {
	if sink == nil {
		sink = notify.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmations == 0 {
		confirmations = 1
	}
	return &Orchestrator{
		statuses:      make(map[string]Status),
		signer:        signer,
		sink:          sink,
		invalidate:    invalidate,
		confirmations: confirmations,
		logger:        logger,
	}
}

// Status returns the last observed status for a request's scope.
func (o *Orchestrator) Status(r Request) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.statuses[r.scopeKey()]; ok {
		return s
	}
	return StatusIdle
}

// Run executes one mutation to completion. It returns the receipt on
// success; the returned error carries the ErrorKind for display.
func (o *Orchestrator) Run(ctx context.Context, r Request) (*types.Receipt, error) {
	if o.signer == nil {
		return nil, fmt.Errorf("no signer configured")
	}

	key := r.scopeKey()
	o.mu.Lock()
	if s := o.statuses[key]; s == StatusSubmitting || s == StatusPending {
		o.mu.Unlock()
		return nil, fmt.Errorf("mutation for %s already in flight: %w", key, model.ConcurrentMutationInProgress)
	}
	o.statuses[key] = StatusSubmitting
	o.mu.Unlock()
	o.transition(r, StatusSubmitting)

	handle, err := o.submit(ctx, r)
	if err != nil {
		o.setStatus(r, StatusFailed)
		return nil, fmt.Errorf("%s submit: %w", r.Kind, err)
	}

	// In flight as soon as the signer hands back a transaction, before any
	// receipt exists.
	o.setStatus(r, StatusPending)
	o.sink.Notify(notify.Notification{
		Kind:        r.Kind,
		Hash:        handle.Hash(),
		Label:       label(r),
		ExplorerURL: r.Chain.TxURL(handle.Hash()),
	})

	receipt, err := handle.WaitForConfirmations(ctx, o.confirmations)
	if err != nil {
		// State on chain is assumed unchanged: no invalidation.
		o.setStatus(r, StatusFailed)
		o.markHistory(ctx, r, handle.Hash(), model.TxFailed)
		return nil, fmt.Errorf("%s confirmation: %w", r.Kind, err)
	}

	if o.invalidate != nil {
		o.invalidate(r)
	}
	o.setStatus(r, StatusSucceeded)
	o.markHistory(ctx, r, handle.Hash(), model.TxConfirmed)
	o.logger.Info("mutation confirmed",
		zap.String("kind", string(r.Kind)),
		zap.String("hash", handle.Hash().Hex()),
	)
	return receipt, nil
}

func (o *Orchestrator) submit(ctx context.Context, r Request) (contracts.TxHandle, error) {
	native := r.Token.IsNative(r.Chain.ChainID)
	cfg, ok := r.Token.OnChain(r.Chain.ChainID)
	if !ok {
		return nil, fmt.Errorf("token %s not deployed on chain %d", r.Token.Symbol, r.Chain.ChainID)
	}

	switch r.Kind {
	case model.MutationAddLiquidity:
		if native {
			return o.signer.AddNativeLiquidity(ctx, r.Amount)
		}
		return o.signer.AddLiquidity(ctx, cfg.Address, r.Amount)
	case model.MutationIncreaseLiquidity:
		if native {
			return o.signer.IncreaseNativeLiquidity(ctx, r.PositionID, r.Amount)
		}
		return o.signer.IncreaseLiquidity(ctx, r.PositionID, r.Amount)
	case model.MutationRemoveLiquidity:
		return o.signer.RemoveLiquidity(ctx, r.PositionID, r.Amount)
	case model.MutationClaimFee:
		return o.signer.ClaimFee(ctx, r.PositionID)
	default:
		return nil, fmt.Errorf("unsupported mutation kind %q", r.Kind)
	}
}

func (o *Orchestrator) markHistory(ctx context.Context, r Request, hash common.Hash, status model.TxStatus) {
	if o.History == nil {
		return
	}
	if err := o.History.MarkStatus(ctx, r.Chain.ChainID, hash, status); err != nil {
		o.logger.Warn("mark transaction history",
			zap.String("hash", hash.Hex()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) setStatus(r Request, s Status) {
	o.mu.Lock()
	o.statuses[r.scopeKey()] = s
	o.mu.Unlock()
	o.transition(r, s)
}

func (o *Orchestrator) transition(r Request, s Status) {
	o.logger.Debug("mutation status",
		zap.String("kind", string(r.Kind)),
		zap.String("scope", r.scopeKey()),
		zap.String("status", string(s)),
	)
	if o.OnTransition != nil {
		o.OnTransition(r, s)
	}
}

func label(r Request) string {
	switch r.Kind {
	case model.MutationAddLiquidity:
		if r.Token.IsNative(r.Chain.ChainID) {
			return "Add native liquidity"
		}
		return "Add liquidity"
	case model.MutationIncreaseLiquidity:
		if r.Token.IsNative(r.Chain.ChainID) {
			return "Increase native liquidity"
		}
		return "Increase liquidity"
	case model.MutationRemoveLiquidity:
		return "Remove liquidity"
	case model.MutationClaimFee:
		return "Claim fee"
	default:
		return string(r.Kind)
	}
}
