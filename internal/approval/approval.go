// Package approval derives the token-approval state gating fund-moving
// transactions from the current allowance and the requested amount. Approval
// is amount-relative: any change to the requested amount re-runs the check,
// it is never a sticky flag.
package approval

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"liquidityHub/internal/contracts"
	"liquidityHub/internal/model"
	"liquidityHub/internal/notify"
)

// State is the approval lifecycle.
type State string

const (
	// StateUnknown blocks the mutating action: no amount requested yet or
	// no allowance information at all.
	StateUnknown State = "unknown"
	// StateChecking blocks while the allowance read is unresolved.
	StateChecking State = "checking"
	// StateInsufficient means allowance < requested amount.
	StateInsufficient State = "insufficient"
	// StateApproving means an approval transaction is in flight.
	StateApproving State = "approving"
	// StateApproved permits the mutating action for the requested amount.
	StateApproved State = "approved"
)

// Config binds a machine to one (owner, token, spender) triple.
type Config struct {
	Owner         common.Address
	Token         common.Address
	Spender       common.Address
	Native        bool
	Chain         model.ChainDescriptor
	Confirmations uint64
}

// Machine tracks approval state for one token/spender pair.
type Machine struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	signer contracts.Signer
	sink   notify.Sink
	// invalidateAllowance marks the allowance cache entry stale after a
	// confirmed approval so the next read re-derives the state.
	invalidateAllowance func()
	logger              *zap.Logger
}

// NewMachine builds a machine in the unknown state.
func NewMachine(cfg Config, signer contracts.Signer, sink notify.Sink, invalidateAllowance func(), logger *zap.Logger) *Machine {
	if sink == nil {
		sink = notify.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		state:               StateUnknown,
		cfg:                 cfg,
		signer:              signer,
		sink:                sink,
		invalidateAllowance: invalidateAllowance,
		logger:              logger,
	}
}

// State returns the current approval state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanSubmit reports whether the mutating action is permitted.
func (m *Machine) CanSubmit() bool {
	return m.State() == StateApproved
}

// Evaluate re-derives the state from the latest allowance read and requested
// amount. allowanceKnown is false while the read is unresolved. Call it on
// every amount edit and allowance refresh; an in-flight approval is left
// alone.
func (m *Machine) Evaluate(allowance *big.Int, allowanceKnown bool, requested *big.Int) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateApproving {
		return m.state
	}

	next := Evaluate(allowance, allowanceKnown, requested, m.cfg.Native)
	if next != m.state {
		m.logger.Debug("approval state",
			zap.String("from", string(m.state)),
			zap.String("to", string(next)),
		)
		m.state = next
	}
	return m.state
}

// Evaluate is the pure state derivation. Native assets are always implicitly
// approved once an amount is requested.
func Evaluate(allowance *big.Int, allowanceKnown bool, requested *big.Int, native bool) State {
	if requested == nil || requested.Sign() == 0 {
		return StateUnknown
	}
	if native {
		return StateApproved
	}
	if !allowanceKnown || allowance == nil {
		return StateChecking
	}
	if allowance.Cmp(requested) < 0 {
		return StateInsufficient
	}
	return StateApproved
}

// Approve issues an approval for either the exact requested amount or the
// maximum representable amount, waits for confirmation, and invalidates the
// allowance read so the machine re-enters checking against fresh data.
func (m *Machine) Approve(ctx context.Context, requested *big.Int, infinite bool) error {
	if m.signer == nil {
		return fmt.Errorf("no signer configured")
	}
	if !infinite && (requested == nil || requested.Sign() <= 0) {
		return fmt.Errorf("approve amount missing: %w", model.InvalidInput)
	}

	m.mu.Lock()
	if m.state == StateApproving {
		m.mu.Unlock()
		return fmt.Errorf("approval already in flight: %w", model.ConcurrentMutationInProgress)
	}
	m.state = StateApproving
	m.mu.Unlock()

	value := requested
	if infinite {
		value = new(big.Int).Set(ethmath.MaxBig256)
	}

	handle, err := m.signer.Approve(ctx, m.cfg.Token, m.cfg.Spender, value)
	if err != nil {
		m.fail()
		return fmt.Errorf("approve: %w", err)
	}

	m.sink.Notify(notify.Notification{
		Kind:        model.MutationApprove,
		Hash:        handle.Hash(),
		Label:       "Token approval",
		ExplorerURL: m.cfg.Chain.TxURL(handle.Hash()),
	})

	confirmations := m.cfg.Confirmations
	if confirmations == 0 {
		confirmations = 1
	}
	if _, err := handle.WaitForConfirmations(ctx, confirmations); err != nil {
		m.fail()
		return fmt.Errorf("approval confirmation: %w", err)
	}

	m.mu.Lock()
	m.state = StateChecking
	m.mu.Unlock()
	if m.invalidateAllowance != nil {
		m.invalidateAllowance()
	}
	m.logger.Info("approval confirmed", zap.String("hash", handle.Hash().Hex()))
	return nil
}

func (m *Machine) fail() {
	m.mu.Lock()
	m.state = StateInsufficient
	m.mu.Unlock()
}
