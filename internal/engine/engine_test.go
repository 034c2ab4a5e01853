package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"liquidityHub/internal/approval"
	"liquidityHub/internal/config"
	"liquidityHub/internal/contracts"
	"liquidityHub/internal/model"
	"liquidityHub/internal/orchestrator"
	"liquidityHub/internal/pricefeed"
	"liquidityHub/internal/querycache"
)

const testRegistry = `{
  "chains": [
    {
      "chain_id": 137,
      "name": "Polygon",
      "explorer_url": "https://scan.example",
      "native_symbol": "MATIC",
      "contracts": {
        "liquidity_pool": "0x1000000000000000000000000000000000000001",
        "lp_token": "0x1000000000000000000000000000000000000002",
        "whitelist_manager": "0x1000000000000000000000000000000000000003"
      }
    }
  ],
  "tokens": [
    {
      "symbol": "USDT",
      "chains": {
        "137": {"address": "0x2000000000000000000000000000000000000001", "decimals": 18}
      }
    }
  ]
}`

// farmingRegistry adds a farming deployment and a second token acting as the
// farm's reward token.
const farmingRegistry = `{
  "chains": [
    {
      "chain_id": 137,
      "name": "Polygon",
      "explorer_url": "https://scan.example",
      "native_symbol": "MATIC",
      "contracts": {
        "liquidity_pool": "0x1000000000000000000000000000000000000001",
        "lp_token": "0x1000000000000000000000000000000000000002",
        "whitelist_manager": "0x1000000000000000000000000000000000000003",
        "liquidity_farming": "0x1000000000000000000000000000000000000004"
      }
    }
  ],
  "tokens": [
    {
      "symbol": "USDT",
      "price_feed_id": "tether",
      "chains": {
        "137": {"address": "0x2000000000000000000000000000000000000001", "decimals": 18}
      }
    },
    {
      "symbol": "BICO",
      "price_feed_id": "biconomy",
      "chains": {
        "137": {"address": "0x2000000000000000000000000000000000000002", "decimals": 18}
      }
    }
  ]
}`

var owner = common.HexToAddress("0x3000000000000000000000000000000000000001")

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fakeReader struct {
	contracts.Reader

	mu             sync.Mutex
	allowance      *big.Int
	balance        *big.Int
	walletCap      *big.Int
	totalCap       *big.Int
	suppliedByLP   *big.Int
	totalLiquidity *big.Int

	position   model.Position
	redeemable *big.Int

	pendingReward *big.Int
	rewardRate    *big.Int
	rewardToken   common.Address
	sharesStaked  *big.Int
	baseDivisor   *big.Int
	reserve       *big.Int
}

func (r *fakeReader) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.allowance), nil
}

func (r *fakeReader) setAllowance(v *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowance = v
}

func (r *fakeReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return r.balance, nil
}

func (r *fakeReader) TokenWalletCap(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.walletCap, nil
}

func (r *fakeReader) TokenTotalCap(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.totalCap, nil
}

func (r *fakeReader) TotalLiquidityByLP(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return r.suppliedByLP, nil
}

func (r *fakeReader) TotalLiquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.totalLiquidity, nil
}

func (r *fakeReader) PositionMetadata(ctx context.Context, positionID *big.Int) (model.Position, error) {
	return r.position, nil
}

func (r *fakeReader) TokenAmount(ctx context.Context, shares *big.Int, token common.Address) (*big.Int, error) {
	return r.redeemable, nil
}

func (r *fakeReader) PendingToken(ctx context.Context, positionID *big.Int) (*big.Int, error) {
	return r.pendingReward, nil
}

func (r *fakeReader) RewardRatePerSecond(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.rewardRate, nil
}

func (r *fakeReader) RewardTokenAddress(ctx context.Context, token common.Address) (common.Address, error) {
	return r.rewardToken, nil
}

func (r *fakeReader) TotalSharesStaked(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.sharesStaked, nil
}

func (r *fakeReader) BaseDivisor(ctx context.Context) (*big.Int, error) {
	return r.baseDivisor, nil
}

func (r *fakeReader) SuppliedLiquidityByToken(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.reserve, nil
}

type fakeFeed struct{ prices map[string]float64 }

func (f *fakeFeed) PriceUSD(ctx context.Context, feedID string) (float64, error) {
	price, ok := f.prices[feedID]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", feedID)
	}
	return price, nil
}

type fakeHandle struct{ hash common.Hash }

func (h *fakeHandle) Hash() common.Hash { return h.hash }

func (h *fakeHandle) WaitForConfirmations(ctx context.Context, n uint64) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: h.hash, BlockNumber: big.NewInt(1)}, nil
}

type fakeSigner struct {
	contracts.Signer

	reader    *fakeReader
	mu        sync.Mutex
	methods   []string
	addAmount *big.Int
}

func (s *fakeSigner) record(method string) contracts.TxHandle {
	s.mu.Lock()
	s.methods = append(s.methods, method)
	n := len(s.methods)
	s.mu.Unlock()
	return &fakeHandle{hash: common.BigToHash(big.NewInt(int64(n)))}
}

func (s *fakeSigner) Approve(ctx context.Context, token, spender common.Address, value *big.Int) (contracts.TxHandle, error) {
	// The confirmed approval becomes visible on the next allowance read.
	s.reader.setAllowance(value)
	return s.record("approve"), nil
}

func (s *fakeSigner) AddLiquidity(ctx context.Context, token common.Address, amount *big.Int) (contracts.TxHandle, error) {
	s.addAmount = amount
	return s.record("addLiquidity"), nil
}

func (s *fakeSigner) IncreaseLiquidity(ctx context.Context, positionID, amount *big.Int) (contracts.TxHandle, error) {
	s.addAmount = amount
	return s.record("increaseLiquidity"), nil
}

func (s *fakeSigner) RemoveLiquidity(ctx context.Context, positionID, amount *big.Int) (contracts.TxHandle, error) {
	return s.record("removeLiquidity"), nil
}

func (s *fakeSigner) ClaimFee(ctx context.Context, positionID *big.Int) (contracts.TxHandle, error) {
	return s.record("claimFee"), nil
}

func newTestEngine(t *testing.T, reader *fakeReader, signer *fakeSigner) (*Engine, *config.Registry) {
	return newEngineWithRegistry(t, testRegistry, reader, signer, nil)
}

func newEngineWithRegistry(t *testing.T, registryJSON string, reader *fakeReader, signer *fakeSigner, feed pricefeed.PriceFeed) (*Engine, *config.Registry) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(registryJSON), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	registry, err := config.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	chain, _ := registry.Chain(137)

	eng, err := New(Options{
		Owner:         owner,
		Chain:         chain,
		Registry:      registry,
		Reader:        reader,
		Signer:        signer,
		Feed:          feed,
		Confirmations: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, registry
}

func TestDepositFlow(t *testing.T) {
	reader := &fakeReader{
		allowance:      big.NewInt(0),
		balance:        e18(100),
		walletCap:      e18(1000),
		totalCap:       e18(100000),
		suppliedByLP:   big.NewInt(0),
		totalLiquidity: e18(90),
	}
	signer := &fakeSigner{reader: reader}
	eng, registry := newTestEngine(t, reader, signer)

	token, _ := registry.Token("USDT")
	if err := eng.SelectToken(token); err != nil {
		t.Fatalf("SelectToken: %v", err)
	}

	ctx := context.Background()
	if err := eng.SetAmountText(ctx, "10"); err != nil {
		t.Fatalf("SetAmountText: %v", err)
	}

	// Allowance 0 < requested: the deposit is blocked behind approval.
	if got := eng.ApprovalState(); got != approval.StateInsufficient {
		t.Fatalf("approval state = %s, want insufficient", got)
	}
	err := eng.AddLiquidity(ctx)
	if !errors.Is(err, model.InsufficientAllowance) {
		t.Fatalf("AddLiquidity before approval: %v, want InsufficientAllowance", err)
	}

	if err := eng.Approve(ctx, false); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := eng.ApprovalState(); got != approval.StateApproved {
		t.Fatalf("approval state = %s, want approved after re-check", got)
	}

	// Projected share: 10 into 90 -> 10%.
	share, err := eng.DepositPoolShare(ctx)
	if err != nil {
		t.Fatalf("DepositPoolShare: %v", err)
	}
	if !share.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("pool share = %s, want 10", share)
	}

	var transitions []orchestrator.Status
	eng.orch.OnTransition = func(_ orchestrator.Request, s orchestrator.Status) {
		transitions = append(transitions, s)
	}

	if err := eng.AddLiquidity(ctx); err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}

	want := []orchestrator.Status{
		orchestrator.StatusSubmitting,
		orchestrator.StatusPending,
		orchestrator.StatusSucceeded,
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}

	if signer.addAmount.Cmp(e18(10)) != 0 {
		t.Fatalf("submitted amount = %s, want 10e18", signer.addAmount)
	}

	// Confirmed mutation invalidates the pool total; next read refetches.
	cfg, _ := token.OnChain(137)
	snap, _ := eng.CacheSnapshot(tokenKey(keyTotalLiquidity, 137, cfg.Address))
	if snap.Status != querycache.StatusIdle {
		t.Fatalf("totalLiquidity status = %s, want idle after invalidation", snap.Status)
	}

	// Input clears after a confirmed deposit.
	if state := eng.InputState(); state.Text != "" || state.Percent != 0 {
		t.Fatalf("input not reset: %+v", state)
	}
}

func TestDepositCeilingBoundsSlider(t *testing.T) {
	reader := &fakeReader{
		allowance:      big.NewInt(0),
		balance:        e18(100),
		walletCap:      e18(40), // cap room below balance
		totalCap:       e18(100000),
		suppliedByLP:   e18(20),
		totalLiquidity: e18(90),
	}
	signer := &fakeSigner{reader: reader}
	eng, registry := newTestEngine(t, reader, signer)

	token, _ := registry.Token("USDT")
	if err := eng.SelectToken(token); err != nil {
		t.Fatalf("SelectToken: %v", err)
	}

	// Ceiling = min(balance 100, walletCap 40 - supplied 20) = 20.
	if err := eng.SetAmountPercent(context.Background(), 50); err != nil {
		t.Fatalf("SetAmountPercent: %v", err)
	}
	if state := eng.InputState(); state.Text != "10.000" {
		t.Fatalf("amount = %q, want 10.000", state.Text)
	}
}

func TestTypedDepositBoundedByCeiling(t *testing.T) {
	reader := &fakeReader{
		allowance:      e18(1000),
		balance:        e18(15),
		walletCap:      e18(1000),
		totalCap:       e18(100000),
		suppliedByLP:   big.NewInt(0),
		totalLiquidity: e18(90),
	}
	signer := &fakeSigner{reader: reader}
	eng, registry := newTestEngine(t, reader, signer)

	token, _ := registry.Token("USDT")
	if err := eng.SelectToken(token); err != nil {
		t.Fatalf("SelectToken: %v", err)
	}

	// Typed directly, never through the slider: the wallet-balance ceiling
	// is still enforced at submission.
	ctx := context.Background()
	if err := eng.SetAmountText(ctx, "16"); err != nil {
		t.Fatalf("SetAmountText: %v", err)
	}
	err := eng.AddLiquidity(ctx)
	if !errors.Is(err, model.InvalidInput) {
		t.Fatalf("AddLiquidity above balance: %v, want InvalidInput", err)
	}
	if len(signer.methods) != 0 {
		t.Fatalf("over-ceiling deposit reached the signer: %v", signer.methods)
	}

	if err := eng.SetAmountText(ctx, "15"); err != nil {
		t.Fatalf("SetAmountText: %v", err)
	}
	if err := eng.AddLiquidity(ctx); err != nil {
		t.Fatalf("AddLiquidity at the ceiling: %v", err)
	}
	if signer.addAmount.Cmp(e18(15)) != 0 {
		t.Fatalf("submitted amount = %s, want 15e18", signer.addAmount)
	}
}

func TestPositionOverviewAndClaim(t *testing.T) {
	tokenAddr := common.HexToAddress("0x2000000000000000000000000000000000000001")
	reader := &fakeReader{
		allowance:      big.NewInt(0),
		totalLiquidity: e18(200),
		position: model.Position{
			ChainID:           137,
			PositionID:        big.NewInt(7),
			TokenAddress:      tokenAddr,
			SuppliedLiquidity: e18(25),
			Shares:            e18(25),
		},
		redeemable: e18(26),
	}
	signer := &fakeSigner{reader: reader}
	eng, _ := newTestEngine(t, reader, signer)

	ctx := context.Background()
	if err := eng.SelectPosition(ctx, big.NewInt(7)); err != nil {
		t.Fatalf("SelectPosition: %v", err)
	}

	o, err := eng.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if o.TokenSymbol != "USDT" {
		t.Fatalf("symbol = %s", o.TokenSymbol)
	}
	if !o.PoolShare.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("pool share = %s, want 12.5", o.PoolShare)
	}
	if !o.UnclaimedFees.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("unclaimed fees = %s, want 1", o.UnclaimedFees)
	}
	if o.RewardAPYKnown || o.RewardRateKnown {
		t.Fatal("farming figures should be unavailable without a farming contract")
	}

	if err := eng.ClaimFee(ctx); err != nil {
		t.Fatalf("ClaimFee: %v", err)
	}

	// Nothing accrued: the claim is rejected before any submission.
	reader.redeemable = e18(25)
	eng.graph.Invalidate(keyTokenAmount, "")
	err = eng.ClaimFee(ctx)
	if !errors.Is(err, model.InvalidInput) {
		t.Fatalf("ClaimFee with no fees: %v, want InvalidInput", err)
	}

	signer.mu.Lock()
	claims := 0
	for _, m := range signer.methods {
		if m == "claimFee" {
			claims++
		}
	}
	signer.mu.Unlock()
	if claims != 1 {
		t.Fatalf("claim submissions = %d, want 1", claims)
	}
}

func TestFarmingOverview(t *testing.T) {
	tokenAddr := common.HexToAddress("0x2000000000000000000000000000000000000001")
	rewardAddr := common.HexToAddress("0x2000000000000000000000000000000000000002")
	reader := &fakeReader{
		allowance:      big.NewInt(0),
		totalLiquidity: e18(200),
		position: model.Position{
			ChainID:           137,
			PositionID:        big.NewInt(7),
			TokenAddress:      tokenAddr,
			SuppliedLiquidity: e18(25),
			Shares:            e18(25),
		},
		redeemable:    e18(26),
		pendingReward: e18(3),
		rewardRate:    big.NewInt(1_000_000_000_000), // 1e-6 tokens/second
		rewardToken:   rewardAddr,
		sharesStaked:  big.NewInt(5_000_000_000),
		baseDivisor:   big.NewInt(10_000_000_000),
		reserve:       e18(200),
	}
	feed := &fakeFeed{prices: map[string]float64{"tether": 1.0, "biconomy": 0.5}}
	signer := &fakeSigner{reader: reader}
	eng, _ := newEngineWithRegistry(t, farmingRegistry, reader, signer, feed)

	ctx := context.Background()
	if err := eng.SelectPosition(ctx, big.NewInt(7)); err != nil {
		t.Fatalf("SelectPosition: %v", err)
	}
	o, err := eng.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if !o.PriceKnown || o.PriceUSD != 1.0 {
		t.Fatalf("price = %v known=%v, want 1.0", o.PriceUSD, o.PriceKnown)
	}
	if o.RewardTokenSymbol != "BICO" {
		t.Fatalf("reward token = %q, want BICO", o.RewardTokenSymbol)
	}
	if !o.PendingRewardKnown || !o.PendingReward.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("pending reward = %s known=%v, want 3", o.PendingReward, o.PendingRewardKnown)
	}
	if !o.RewardsPerDay.Equal(decimal.RequireFromString("0.0864")) {
		t.Fatalf("rewards/day = %s, want 0.0864", o.RewardsPerDay)
	}
	// 25e18 shares / 1e10 divisor / 5e9 staked = half the farm.
	if !o.RewardRateKnown || !o.YourRewardRate.Equal(decimal.RequireFromString("0.0432")) {
		t.Fatalf("your rate = %s known=%v, want 0.0432", o.YourRewardRate, o.RewardRateKnown)
	}
	// Reward stream 5e-7 USD/s against a 200 USD reserve compounds to ~8.2%.
	if !o.RewardAPYKnown || o.RewardAPY < 8.1 || o.RewardAPY > 8.3 {
		t.Fatalf("APY = %v known=%v, want ~8.2", o.RewardAPY, o.RewardAPYKnown)
	}
}

func TestIncreaseUsesDepositCeiling(t *testing.T) {
	tokenAddr := common.HexToAddress("0x2000000000000000000000000000000000000001")
	reader := &fakeReader{
		allowance:      e18(1000),
		balance:        e18(100),
		walletCap:      e18(1000),
		totalCap:       e18(100000),
		suppliedByLP:   e18(8),
		totalLiquidity: e18(200),
		position: model.Position{
			ChainID:           137,
			PositionID:        big.NewInt(7),
			TokenAddress:      tokenAddr,
			SuppliedLiquidity: e18(8),
			Shares:            e18(8),
		},
		redeemable: e18(8),
	}
	signer := &fakeSigner{reader: reader}
	eng, _ := newTestEngine(t, reader, signer)

	ctx := context.Background()
	if err := eng.SelectPosition(ctx, big.NewInt(7)); err != nil {
		t.Fatalf("SelectPosition: %v", err)
	}
	eng.SetFlow(FlowDeposit)

	// Anchored to wallet funds (100), not the position's 8.
	if err := eng.SetAmountPercent(ctx, 25); err != nil {
		t.Fatalf("SetAmountPercent: %v", err)
	}
	if state := eng.InputState(); state.Text != "25.000" {
		t.Fatalf("amount = %q, want 25.000", state.Text)
	}

	if err := eng.IncreaseLiquidity(ctx); err != nil {
		t.Fatalf("IncreaseLiquidity: %v", err)
	}
	if signer.addAmount.Cmp(e18(25)) != 0 {
		t.Fatalf("submitted amount = %s, want 25e18", signer.addAmount)
	}
}

func TestSelectPositionRejectsUnregisteredToken(t *testing.T) {
	reader := &fakeReader{
		allowance: big.NewInt(0),
		position: model.Position{
			PositionID:        big.NewInt(9),
			TokenAddress:      common.HexToAddress("0x9999999999999999999999999999999999999999"),
			SuppliedLiquidity: e18(1),
			Shares:            e18(1),
		},
	}
	eng, _ := newTestEngine(t, reader, &fakeSigner{reader: reader})

	if err := eng.SelectPosition(context.Background(), big.NewInt(9)); err == nil {
		t.Fatal("expected error for unregistered token")
	}
}

func TestRemoveLiquidityCappedBySupplied(t *testing.T) {
	tokenAddr := common.HexToAddress("0x2000000000000000000000000000000000000001")
	reader := &fakeReader{
		allowance:      big.NewInt(0),
		totalLiquidity: e18(200),
		position: model.Position{
			ChainID:           137,
			PositionID:        big.NewInt(7),
			TokenAddress:      tokenAddr,
			SuppliedLiquidity: e18(8),
			Shares:            e18(8),
		},
		redeemable: e18(8),
	}
	signer := &fakeSigner{reader: reader}
	eng, _ := newTestEngine(t, reader, signer)

	ctx := context.Background()
	if err := eng.SelectPosition(ctx, big.NewInt(7)); err != nil {
		t.Fatalf("SelectPosition: %v", err)
	}

	// Slider anchors to the supplied liquidity, not wallet funds.
	if err := eng.SetAmountPercent(ctx, 50); err != nil {
		t.Fatalf("SetAmountPercent: %v", err)
	}
	if state := eng.InputState(); state.Text != "4.000" {
		t.Fatalf("amount = %q, want 4.000", state.Text)
	}

	// Withdrawal above the position is rejected without a submission.
	if err := eng.SetAmountText(ctx, "9"); err != nil {
		t.Fatalf("SetAmountText: %v", err)
	}
	err := eng.RemoveLiquidity(ctx)
	if !errors.Is(err, model.InvalidInput) {
		t.Fatalf("RemoveLiquidity over ceiling: %v, want InvalidInput", err)
	}

	if err := eng.SetAmountText(ctx, "4"); err != nil {
		t.Fatalf("SetAmountText: %v", err)
	}
	if err := eng.RemoveLiquidity(ctx); err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
}
