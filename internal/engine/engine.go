// Package engine composes the cache graph, input synchronizer, approval
// machine and transaction orchestrator into the liquidity flows: deposit,
// increase, withdraw and fee claim against one chain's pool contracts.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityHub/internal/amount"
	"liquidityHub/internal/approval"
	"liquidityHub/internal/config"
	"liquidityHub/internal/contracts"
	"liquidityHub/internal/input"
	"liquidityHub/internal/metrics"
	"liquidityHub/internal/model"
	"liquidityHub/internal/notify"
	"liquidityHub/internal/orchestrator"
	"liquidityHub/internal/pricefeed"
	"liquidityHub/internal/querycache"
	"liquidityHub/internal/storage"
)

// Options wires an engine's collaborators. Reader and Signer are bound to
// Chain; NativeBalance reads the owner's native-asset balance since that
// never goes through an ERC20 view.
type Options struct {
	Owner         common.Address
	Chain         config.Chain
	Registry      *config.Registry
	Reader        contracts.Reader
	Signer        contracts.Signer
	NativeBalance func(ctx context.Context, owner common.Address) (*big.Int, error)
	Feed          pricefeed.PriceFeed
	History       storage.History
	Sink          notify.Sink
	Confirmations uint64
	Logger        *zap.Logger
}

// Engine drives the liquidity flows for one (owner, chain) pair. Selecting a
// token or position switches the cache scope; reads started under the old
// selection are discarded when they complete.
type Engine struct {
	opts   Options
	graph  *querycache.Graph
	orch   *orchestrator.Orchestrator
	input  *input.Synchronizer
	sink   notify.Sink
	logger *zap.Logger

	mu       sync.Mutex
	token    model.TokenDescriptor
	hasToken bool
	position *big.Int
	flow     Flow
	machine  *approval.Machine
}

// Flow selects which ceiling anchors the amount input: deposits are bounded
// by wallet funds and whitelist caps, withdrawals by the position's supplied
// liquidity.
type Flow string

const (
	FlowDeposit  Flow = "deposit"
	FlowWithdraw Flow = "withdraw"
)

// New builds an engine. The orchestrator's invalidation hook and the
// approval machine's allowance invalidation both route back into the graph,
// so confirmed mutations always force fresh reads.
func New(opts Options) (*Engine, error) {
	if opts.Reader == nil {
		return nil, fmt.Errorf("contract reader is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = notify.NewLogSink(opts.Logger)
	}

	e := &Engine{
		opts:   opts,
		graph:  querycache.NewGraph(opts.Logger),
		input:  input.NewSynchronizer(opts.Logger),
		logger: opts.Logger,
	}
	declareDependencies(e.graph)

	e.sink = opts.Sink
	if opts.History != nil {
		e.sink = notify.MultiSink{opts.Sink, &historyRecorder{
			history: opts.History,
			chainID: opts.Chain.ChainID,
			logger:  opts.Logger,
		}}
	}
	e.orch = orchestrator.New(opts.Signer, e.sink, e.invalidations, opts.Confirmations, opts.Logger)
	e.orch.History = opts.History
	return e, nil
}

// historyRecorder records each submitted transaction in the history store.
type historyRecorder struct {
	history storage.History
	chainID uint64
	logger  *zap.Logger
}

func (h *historyRecorder) Notify(n notify.Notification) {
	err := h.history.RecordSubmitted(context.Background(), model.PendingTransaction{
		Kind:    n.Kind,
		ChainID: h.chainID,
		Hash:    n.Hash,
		Label:   n.Label,
		Status:  model.TxSubmitted,
	})
	if err != nil {
		h.logger.Warn("record transaction history", zap.Error(err))
	}
}

// SelectToken starts a deposit flow for token. Input state is cleared and
// the cache scope moves to the new selection.
func (e *Engine) SelectToken(token model.TokenDescriptor) error {
	cfg, ok := token.OnChain(e.opts.Chain.ChainID)
	if !ok {
		return fmt.Errorf("token %s not deployed on chain %d", token.Symbol, e.opts.Chain.ChainID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = token
	e.hasToken = true
	e.position = nil
	e.flow = FlowDeposit
	e.input.Reset()
	e.graph.SetScope(fmt.Sprintf("%d:%s:%s", e.opts.Chain.ChainID, cfg.Address.Hex(), e.opts.Owner.Hex()))
	e.machine = e.newMachineLocked(cfg)
	return nil
}

// SelectPosition loads an existing position and starts a manage flow for it.
func (e *Engine) SelectPosition(ctx context.Context, positionID *big.Int) error {
	if positionID == nil {
		return fmt.Errorf("position id missing: %w", model.InvalidInput)
	}

	pos, err := e.positionMetadata(ctx, positionID)
	if err != nil {
		return err
	}
	token, ok := e.opts.Registry.TokenByAddress(e.opts.Chain.ChainID, pos.TokenAddress)
	if !ok {
		return fmt.Errorf("position %s holds unregistered token %s", positionID, pos.TokenAddress.Hex())
	}
	cfg, _ := token.OnChain(e.opts.Chain.ChainID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = token
	e.hasToken = true
	e.position = new(big.Int).Set(positionID)
	e.flow = FlowWithdraw
	e.input.Reset()
	e.graph.SetScope(fmt.Sprintf("%d:pos:%s:%s", e.opts.Chain.ChainID, positionID, e.opts.Owner.Hex()))
	e.machine = e.newMachineLocked(cfg)
	return nil
}

func (e *Engine) newMachineLocked(cfg model.TokenChainConfig) *approval.Machine {
	key := allowanceKey(e.opts.Chain.ChainID, e.opts.Owner, cfg.Address, e.opts.Chain.Contracts.LiquidityPool)
	return approval.NewMachine(approval.Config{
		Owner:         e.opts.Owner,
		Token:         cfg.Address,
		Spender:       e.opts.Chain.Contracts.LiquidityPool,
		Native:        cfg.Address == model.NativeAddress,
		Chain:         e.opts.Chain.ChainDescriptor,
		Confirmations: e.opts.Confirmations,
	}, e.opts.Signer, e.sink, func() {
		e.graph.Invalidate(key.Name, key.Param)
	}, e.logger)
}

// Reset clears the selection, input state and every cached read. Used on
// wallet disconnect and chain switch.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasToken = false
	e.position = nil
	e.machine = nil
	e.input.Reset()
	e.graph.InvalidateAll()
	e.graph.SetScope("")
}

// InputState returns the current text/slider state.
func (e *Engine) InputState() input.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input.State()
}

// SetAmountText applies a free-text amount edit and re-derives approval.
func (e *Engine) SetAmountText(ctx context.Context, text string) error {
	e.mu.Lock()
	if err := e.input.SetText(text); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()
	return e.evaluateApproval(ctx)
}

// SetAmountPercent applies a slider step. The ceiling is refreshed first so
// the derived amount anchors to current balances and caps.
func (e *Engine) SetAmountPercent(ctx context.Context, percent int) error {
	if err := e.refreshCeiling(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	if err := e.input.SetPercent(percent); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()
	return e.evaluateApproval(ctx)
}

// SetMax snaps the amount to the full ceiling.
func (e *Engine) SetMax(ctx context.Context) error {
	if err := e.refreshCeiling(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.input.SetMax()
	e.mu.Unlock()
	return e.evaluateApproval(ctx)
}

// ApprovalState returns the current approval state for the selection.
func (e *Engine) ApprovalState() approval.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return approval.StateUnknown
	}
	return e.machine.State()
}

// Approve issues a token approval for the entered amount, or for the
// maximum representable amount when infinite is set.
func (e *Engine) Approve(ctx context.Context, infinite bool) error {
	e.mu.Lock()
	machine := e.machine
	raw, err := e.rawAmountLocked()
	e.mu.Unlock()

	if machine == nil {
		return fmt.Errorf("no token selected: %w", model.InvalidInput)
	}
	if err != nil && !infinite {
		return err
	}
	if err := machine.Approve(ctx, raw, infinite); err != nil {
		return err
	}
	return e.evaluateApproval(ctx)
}

// AddLiquidity opens a new position with the entered amount.
func (e *Engine) AddLiquidity(ctx context.Context) error {
	return e.runMutation(ctx, model.MutationAddLiquidity, nil, true)
}

// SetFlow switches the ceiling anchor for the selected position, e.g. to
// the deposit ceiling before an increase. Input state is cleared since the
// previous amount was derived against the other anchor.
func (e *Engine) SetFlow(flow Flow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flow == flow {
		return
	}
	e.flow = flow
	e.input.Reset()
}

// IncreaseLiquidity adds the entered amount to the selected position.
func (e *Engine) IncreaseLiquidity(ctx context.Context) error {
	e.mu.Lock()
	position := e.position
	e.mu.Unlock()
	if position == nil {
		return fmt.Errorf("no position selected: %w", model.InvalidInput)
	}
	return e.runMutation(ctx, model.MutationIncreaseLiquidity, position, true)
}

// RemoveLiquidity withdraws the entered amount from the selected position.
// Withdrawal burns pool shares, so no token approval is involved; the
// ceiling is the position's supplied liquidity instead of wallet funds.
func (e *Engine) RemoveLiquidity(ctx context.Context) error {
	e.mu.Lock()
	position := e.position
	e.mu.Unlock()
	if position == nil {
		return fmt.Errorf("no position selected: %w", model.InvalidInput)
	}

	// Hard bound independent of the input ceiling: never attempt to burn
	// more than the position supplied.
	pos, err := e.positionMetadata(ctx, position)
	if err != nil {
		return err
	}
	raw, err := func() (*big.Int, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.rawAmountLocked()
	}()
	if err != nil {
		return err
	}
	if raw.Cmp(pos.SuppliedLiquidity) > 0 {
		return fmt.Errorf("withdraw amount exceeds supplied liquidity: %w", model.InvalidInput)
	}

	return e.runMutation(ctx, model.MutationRemoveLiquidity, position, false)
}

// ClaimFee claims the selected position's accrued fees. Claiming with
// nothing accrued reverts on chain, so it is rejected up front.
func (e *Engine) ClaimFee(ctx context.Context) error {
	e.mu.Lock()
	position := e.position
	token := e.token
	e.mu.Unlock()
	if position == nil {
		return fmt.Errorf("no position selected: %w", model.InvalidInput)
	}

	pos, err := e.positionMetadata(ctx, position)
	if err != nil {
		return err
	}
	cfg, _ := token.OnChain(e.opts.Chain.ChainID)
	redeemable, err := e.tokenAmount(ctx, position, pos.Shares, cfg.Address)
	if err != nil {
		return err
	}
	fees := metrics.DisplayUnclaimedFees(metrics.UnclaimedFees(redeemable, pos.SuppliedLiquidity))
	if fees.Sign() == 0 {
		return fmt.Errorf("no unclaimed fees on position %s: %w", position, model.InvalidInput)
	}

	_, err = e.orch.Run(ctx, orchestrator.Request{
		Kind:       model.MutationClaimFee,
		Chain:      e.opts.Chain.ChainDescriptor,
		Token:      token,
		PositionID: position,
	})
	return err
}

func (e *Engine) runMutation(ctx context.Context, kind model.MutationKind, position *big.Int, needsApproval bool) error {
	e.mu.Lock()
	if !e.hasToken {
		e.mu.Unlock()
		return fmt.Errorf("no token selected: %w", model.InvalidInput)
	}
	token := e.token
	machine := e.machine
	e.mu.Unlock()

	// A typed amount never went through the slider path, so the ceiling may
	// not have been read yet. Refresh it here so the bound check holds for
	// both entry modes.
	if err := e.refreshCeiling(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	raw, err := e.rawAmountLocked()
	exceeds := e.input.ExceedsCeiling()
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if raw.Sign() == 0 {
		return fmt.Errorf("amount is zero: %w", model.InvalidInput)
	}
	if exceeds {
		return fmt.Errorf("amount exceeds available ceiling: %w", model.InvalidInput)
	}

	native := token.IsNative(e.opts.Chain.ChainID)
	if needsApproval && !native {
		if err := e.evaluateApproval(ctx); err != nil {
			return err
		}
		if !machine.CanSubmit() {
			return fmt.Errorf("approval state %s: %w", machine.State(), model.InsufficientAllowance)
		}
	}

	_, err = e.orch.Run(ctx, orchestrator.Request{
		Kind:       kind,
		Chain:      e.opts.Chain.ChainDescriptor,
		Token:      token,
		PositionID: position,
		Amount:     raw,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.input.Reset()
	e.mu.Unlock()
	return nil
}

func (e *Engine) rawAmountLocked() (*big.Int, error) {
	cfg, ok := e.token.OnChain(e.opts.Chain.ChainID)
	if !ok {
		return nil, fmt.Errorf("no token selected: %w", model.InvalidInput)
	}
	return e.input.RawAmount(cfg.Decimals)
}

// evaluateApproval re-derives the approval state from the entered amount and
// the cached allowance. The allowance read only runs while an amount is
// actually requested.
func (e *Engine) evaluateApproval(ctx context.Context) error {
	e.mu.Lock()
	machine := e.machine
	token := e.token
	hasToken := e.hasToken
	raw, rawErr := e.rawAmountLocked()
	e.mu.Unlock()

	if !hasToken || machine == nil {
		return nil
	}
	if rawErr != nil || raw.Sign() == 0 {
		machine.Evaluate(nil, false, nil)
		return nil
	}
	if token.IsNative(e.opts.Chain.ChainID) {
		machine.Evaluate(nil, false, raw)
		return nil
	}

	cfg, _ := token.OnChain(e.opts.Chain.ChainID)
	spender := e.opts.Chain.Contracts.LiquidityPool
	key := allowanceKey(e.opts.Chain.ChainID, e.opts.Owner, cfg.Address, spender)
	snap, err := e.graph.GetWait(ctx, key, func(ctx context.Context) (any, error) {
		value, err := e.opts.Reader.Allowance(ctx, e.opts.Owner, cfg.Address, spender)
		if err != nil {
			return nil, err
		}
		return model.AllowanceRecord{
			Owner:     e.opts.Owner,
			Token:     cfg.Address,
			Spender:   spender,
			Allowance: value,
		}, nil
	}, true)
	if err != nil {
		machine.Evaluate(nil, false, raw)
		return err
	}
	record, ok := querycache.Value[model.AllowanceRecord](snap)
	machine.Evaluate(record.Allowance, ok, raw)
	return nil
}

// refreshCeiling computes the amount ceiling for the current flow and feeds
// it into the input synchronizer. Deposits are bounded by wallet funds and
// the whitelist caps; withdrawals by the position's supplied liquidity.
func (e *Engine) refreshCeiling(ctx context.Context) error {
	e.mu.Lock()
	hasToken := e.hasToken
	token := e.token
	position := e.position
	flow := e.flow
	e.mu.Unlock()

	if !hasToken {
		return fmt.Errorf("no token selected: %w", model.InvalidInput)
	}
	cfg, _ := token.OnChain(e.opts.Chain.ChainID)

	var ceiling *big.Int
	var err error
	if flow == FlowWithdraw && position != nil {
		ceiling, err = e.withdrawCeiling(ctx, position)
	} else {
		ceiling, err = e.depositCeiling(ctx, cfg)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.input.SetCeiling(amount.ToDecimal(ceiling, cfg.Decimals))
	e.mu.Unlock()
	return nil
}

func (e *Engine) withdrawCeiling(ctx context.Context, positionID *big.Int) (*big.Int, error) {
	pos, err := e.positionMetadata(ctx, positionID)
	if err != nil {
		return nil, err
	}
	return pos.SuppliedLiquidity, nil
}

func (e *Engine) depositCeiling(ctx context.Context, cfg model.TokenChainConfig) (*big.Int, error) {
	chainID := e.opts.Chain.ChainID
	owner := e.opts.Owner

	balance, err := e.bigIntWait(ctx, ownerTokenKey(keyWalletBalance, chainID, cfg.Address, owner), func(ctx context.Context) (any, error) {
		if cfg.Address == model.NativeAddress {
			if e.opts.NativeBalance == nil {
				return nil, fmt.Errorf("native balance reader not configured")
			}
			return e.opts.NativeBalance(ctx, owner)
		}
		return e.opts.Reader.BalanceOf(ctx, cfg.Address, owner)
	})
	if err != nil {
		return nil, err
	}

	walletCap, err := e.bigIntWait(ctx, tokenKey(keyTokenWalletCap, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.TokenWalletCap(ctx, cfg.Address)
	})
	if err != nil {
		return nil, err
	}
	supplied, err := e.bigIntWait(ctx, ownerTokenKey(keyLiquidityByLP, chainID, cfg.Address, owner), func(ctx context.Context) (any, error) {
		return e.opts.Reader.TotalLiquidityByLP(ctx, cfg.Address, owner)
	})
	if err != nil {
		return nil, err
	}
	totalCap, err := e.bigIntWait(ctx, tokenKey(keyTokenTotalCap, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.TokenTotalCap(ctx, cfg.Address)
	})
	if err != nil {
		return nil, err
	}
	totalLiquidity, err := e.totalLiquidity(ctx, cfg.Address)
	if err != nil {
		return nil, err
	}

	capRoom := new(big.Int).Sub(walletCap, supplied)
	poolRoom := new(big.Int).Sub(totalCap, totalLiquidity)

	ceiling := new(big.Int).Set(balance)
	if capRoom.Cmp(ceiling) < 0 {
		ceiling = capRoom
	}
	if poolRoom.Cmp(ceiling) < 0 {
		ceiling = poolRoom
	}
	if ceiling.Sign() < 0 {
		ceiling = big.NewInt(0)
	}
	return ceiling, nil
}

// DepositPoolShare projects the pool share the entered amount would hold.
// With a position selected the projection covers the whole stake, existing
// supplied liquidity plus the entered increase.
func (e *Engine) DepositPoolShare(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	hasToken := e.hasToken
	token := e.token
	position := e.position
	entered, ok := e.input.Amount()
	e.mu.Unlock()

	if !hasToken {
		return decimal.Zero, fmt.Errorf("no token selected: %w", model.InvalidInput)
	}
	if !ok {
		return decimal.Zero, nil
	}
	cfg, _ := token.OnChain(e.opts.Chain.ChainID)

	if position != nil {
		pos, err := e.positionMetadata(ctx, position)
		if err != nil {
			return decimal.Zero, err
		}
		entered = entered.Add(amount.ToDecimal(pos.SuppliedLiquidity, cfg.Decimals))
	}

	total, err := e.totalLiquidity(ctx, cfg.Address)
	if err != nil {
		return decimal.Zero, err
	}
	return metrics.PoolShareForDeposit(entered, amount.ToDecimal(total, cfg.Decimals)), nil
}

// Overview is the derived view of the selected position.
type Overview struct {
	Position      model.Position
	TokenSymbol   string
	Supplied      decimal.Decimal
	Redeemable    decimal.Decimal
	UnclaimedFees decimal.Decimal
	PoolShare     decimal.Decimal

	PriceUSD   float64
	PriceKnown bool

	RewardTokenSymbol string
	RewardAPY         float64
	RewardAPYKnown    bool
	RewardsPerDay     decimal.Decimal
	YourRewardRate    decimal.Decimal
	RewardRateKnown   bool

	PendingReward      decimal.Decimal
	PendingRewardKnown bool
}

// Overview computes the position metrics. Farming figures are filled only
// when a farming contract is deployed on the chain and the price feed knows
// the token; everything else degrades to the unavailable flags.
func (e *Engine) Overview(ctx context.Context) (Overview, error) {
	e.mu.Lock()
	position := e.position
	token := e.token
	e.mu.Unlock()

	if position == nil {
		return Overview{}, fmt.Errorf("no position selected: %w", model.InvalidInput)
	}
	cfg, _ := token.OnChain(e.opts.Chain.ChainID)

	pos, err := e.positionMetadata(ctx, position)
	if err != nil {
		return Overview{}, err
	}
	redeemable, err := e.tokenAmount(ctx, position, pos.Shares, cfg.Address)
	if err != nil {
		return Overview{}, err
	}
	total, err := e.totalLiquidity(ctx, cfg.Address)
	if err != nil {
		return Overview{}, err
	}

	// The reads above happen one after another; if an invalidation landed in
	// between, the values span fetch generations and must not be combined.
	posSnap, _ := e.graph.Snapshot(positionKey(keyPositionMetadata, e.opts.Chain.ChainID, position))
	amountSnap, _ := e.graph.Snapshot(positionKey(keyTokenAmount, e.opts.Chain.ChainID, position))
	totalSnap, _ := e.graph.Snapshot(tokenKey(keyTotalLiquidity, e.opts.Chain.ChainID, cfg.Address))
	if !metrics.AllResolved(posSnap, amountSnap, totalSnap) {
		return Overview{}, fmt.Errorf("position view invalidated mid-read: %w", model.FetchFailed)
	}

	supplied := amount.ToDecimal(pos.SuppliedLiquidity, cfg.Decimals)
	o := Overview{
		Position:      pos,
		TokenSymbol:   token.Symbol,
		Supplied:      supplied,
		Redeemable:    amount.ToDecimal(redeemable, cfg.Decimals),
		UnclaimedFees: amount.ToDecimal(metrics.DisplayUnclaimedFees(metrics.UnclaimedFees(redeemable, pos.SuppliedLiquidity)), cfg.Decimals),
		PoolShare:     metrics.PoolShareOfPosition(supplied, amount.ToDecimal(total, cfg.Decimals)),
	}

	o.PriceUSD, o.PriceKnown = e.priceUSD(ctx, token.PriceFeedID)

	if e.opts.Chain.Contracts.LiquidityFarming != (common.Address{}) {
		e.fillFarming(ctx, &o, cfg)
	}
	return o, nil
}

// priceUSD reads a cached price quote; ok is false without a feed, a feed id
// or a resolvable quote.
func (e *Engine) priceUSD(ctx context.Context, feedID string) (float64, bool) {
	if e.opts.Feed == nil || feedID == "" {
		return 0, false
	}
	snap, err := e.graph.GetWait(ctx, priceKey(feedID), func(ctx context.Context) (any, error) {
		return e.opts.Feed.PriceUSD(ctx, feedID)
	}, true)
	if err != nil {
		return 0, false
	}
	return querycache.Value[float64](snap)
}

func (e *Engine) fillFarming(ctx context.Context, o *Overview, cfg model.TokenChainConfig) {
	chainID := e.opts.Chain.ChainID

	// Rewards are denominated in the farm's reward token, which may differ
	// from the staked token. Unresolvable reward tokens fall back to the
	// staked token's decimals and price.
	rewardCfg := cfg
	rewardFeedID := ""
	o.RewardTokenSymbol = o.TokenSymbol
	snap, err := e.graph.GetWait(ctx, tokenKey(keyRewardToken, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.RewardTokenAddress(ctx, cfg.Address)
	}, true)
	if err == nil {
		if addr, ok := querycache.Value[common.Address](snap); ok {
			if rewardToken, found := e.opts.Registry.TokenByAddress(chainID, addr); found {
				o.RewardTokenSymbol = rewardToken.Symbol
				rewardFeedID = rewardToken.PriceFeedID
				if c, ok := rewardToken.OnChain(chainID); ok {
					rewardCfg = c
				}
			}
		}
	}

	pending, err := e.bigIntWait(ctx, positionKey(keyPendingReward, chainID, o.Position.PositionID), func(ctx context.Context) (any, error) {
		return e.opts.Reader.PendingToken(ctx, o.Position.PositionID)
	})
	if err == nil {
		o.PendingReward = amount.ToDecimal(pending, rewardCfg.Decimals)
		o.PendingRewardKnown = true
	}

	rate, err := e.bigIntWait(ctx, tokenKey(keyRewardRate, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.RewardRatePerSecond(ctx, cfg.Address)
	})
	if err != nil {
		return
	}
	staked, err := e.bigIntWait(ctx, tokenKey(keyTotalSharesStaked, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.TotalSharesStaked(ctx, cfg.Address)
	})
	if err != nil {
		return
	}
	baseDivisor, err := e.bigIntWait(ctx, querycache.Key{Name: keyBaseDivisor, Param: fmt.Sprintf("%d", chainID)}, func(ctx context.Context) (any, error) {
		return e.opts.Reader.BaseDivisor(ctx)
	})
	if err != nil {
		return
	}

	perDay := metrics.RewardsPerDay(amount.ToDecimal(rate, rewardCfg.Decimals))
	o.RewardsPerDay = perDay
	o.YourRewardRate, o.RewardRateKnown = metrics.YourRewardRate(o.Position.Shares, baseDivisor, staked, perDay)

	if !o.PriceKnown {
		return
	}

	// APY compounds the reward stream against the pool's locked reserve.
	reserve, err := e.bigIntWait(ctx, tokenKey(keySuppliedByToken, chainID, cfg.Address), func(ctx context.Context) (any, error) {
		return e.opts.Reader.SuppliedLiquidityByToken(ctx, cfg.Address)
	})
	if err != nil {
		return
	}
	rewardPrice := o.PriceUSD
	if p, ok := e.priceUSD(ctx, rewardFeedID); ok {
		rewardPrice = p
	}
	rateUSD, _ := amount.ToDecimal(rate, rewardCfg.Decimals).Mul(decimal.NewFromFloat(rewardPrice)).Float64()
	tvlUSD, _ := amount.ToDecimal(reserve, cfg.Decimals).Mul(decimal.NewFromFloat(o.PriceUSD)).Float64()
	o.RewardAPY, o.RewardAPYKnown = metrics.RewardAPY(rateUSD, tvlUSD)
}

func (e *Engine) positionMetadata(ctx context.Context, positionID *big.Int) (model.Position, error) {
	key := positionKey(keyPositionMetadata, e.opts.Chain.ChainID, positionID)
	snap, err := e.graph.GetWait(ctx, key, func(ctx context.Context) (any, error) {
		return e.opts.Reader.PositionMetadata(ctx, positionID)
	}, true)
	if err != nil {
		return model.Position{}, err
	}
	pos, ok := querycache.Value[model.Position](snap)
	if !ok {
		return model.Position{}, fmt.Errorf("position %s unresolved: %w", positionID, model.FetchFailed)
	}
	return pos, nil
}

func (e *Engine) tokenAmount(ctx context.Context, positionID, shares *big.Int, token common.Address) (*big.Int, error) {
	key := positionKey(keyTokenAmount, e.opts.Chain.ChainID, positionID)
	return e.bigIntWait(ctx, key, func(ctx context.Context) (any, error) {
		return e.opts.Reader.TokenAmount(ctx, shares, token)
	})
}

func (e *Engine) totalLiquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	return e.bigIntWait(ctx, tokenKey(keyTotalLiquidity, e.opts.Chain.ChainID, token), func(ctx context.Context) (any, error) {
		return e.opts.Reader.TotalLiquidity(ctx, token)
	})
}

func (e *Engine) bigIntWait(ctx context.Context, key querycache.Key, fetch querycache.Fetcher) (*big.Int, error) {
	snap, err := e.graph.GetWait(ctx, key, fetch, true)
	if err != nil {
		return nil, err
	}
	v, ok := querycache.Value[*big.Int](snap)
	if !ok {
		return nil, fmt.Errorf("%s unresolved: %w", key, model.FetchFailed)
	}
	return v, nil
}

// CacheSnapshot exposes the state of one cache entry, mainly for status
// surfaces and tests.
func (e *Engine) CacheSnapshot(key querycache.Key) (querycache.Snapshot, bool) {
	return e.graph.Snapshot(key)
}
