package metrics

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"liquidityHub/internal/querycache"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPoolShareForDeposit(t *testing.T) {
	// 10 into a pool holding 90 -> 10%.
	got := PoolShareForDeposit(dec("10"), dec("90"))
	if !got.Equal(dec("10")) {
		t.Fatalf("pool share = %s, want 10", got)
	}

	// Rounded to two decimals: 1/(1+2) = 33.33%.
	got = PoolShareForDeposit(dec("1"), dec("2"))
	if !got.Equal(dec("33.33")) {
		t.Fatalf("pool share = %s, want 33.33", got)
	}

	if got := PoolShareForDeposit(decimal.Zero, dec("90")); !got.IsZero() {
		t.Fatalf("zero amount should yield zero share, got %s", got)
	}
	if got := PoolShareForDeposit(decimal.Zero, decimal.Zero); !got.IsZero() {
		t.Fatalf("empty pool should yield zero share, got %s", got)
	}
}

func TestPoolShareOfPosition(t *testing.T) {
	got := PoolShareOfPosition(dec("25"), dec("200"))
	if !got.Equal(dec("12.5")) {
		t.Fatalf("position share = %s, want 12.5", got)
	}
	if got := PoolShareOfPosition(dec("25"), decimal.Zero); !got.IsZero() {
		t.Fatalf("unknown total should yield zero, got %s", got)
	}
}

func TestUnclaimedFees(t *testing.T) {
	fees := UnclaimedFees(big.NewInt(1050), big.NewInt(1000))
	if fees.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("fees = %s, want 50", fees)
	}

	// Redeemable below supplied: raw value negative, display floored at 0.
	fees = UnclaimedFees(big.NewInt(990), big.NewInt(1000))
	if fees.Cmp(big.NewInt(-10)) != 0 {
		t.Fatalf("fees = %s, want -10", fees)
	}
	if got := DisplayUnclaimedFees(fees); got.Sign() != 0 {
		t.Fatalf("display fees = %s, want 0", got)
	}
	if got := DisplayUnclaimedFees(nil); got.Sign() != 0 {
		t.Fatalf("display fees for missing data = %s, want 0", got)
	}
}

func TestRewardAPY(t *testing.T) {
	apy, ok := RewardAPY(0.001, 100000)
	if !ok {
		t.Fatal("expected APY to be available")
	}
	// (1 + 1e-8)^31536000 - 1 ~= 0.3706 -> 37.06%.
	if apy < 37.0 || apy > 37.2 {
		t.Fatalf("apy = %f, want ~37.06", apy)
	}

	if _, ok := RewardAPY(0, 100000); ok {
		t.Fatal("missing rate must be unavailable, not zero")
	}
	if _, ok := RewardAPY(0.001, 0); ok {
		t.Fatal("missing TVL must be unavailable, not zero")
	}
}

func TestYourRewardRate(t *testing.T) {
	shares := new(big.Int).Mul(big.NewInt(5000), big.NewInt(1e10))
	baseDivisor := big.NewInt(1e10)
	totalStaked := big.NewInt(100000)
	perDay := RewardsPerDay(dec("0.5"))

	if !perDay.Equal(dec("43200")) {
		t.Fatalf("rewards per day = %s, want 43200", perDay)
	}

	rate, ok := YourRewardRate(shares, baseDivisor, totalStaked, perDay)
	if !ok {
		t.Fatal("expected rate to be available")
	}
	// 5000/100000 of 43200 per day = 2160.
	if !rate.Equal(dec("2160")) {
		t.Fatalf("rate = %s, want 2160", rate)
	}

	if _, ok := YourRewardRate(nil, baseDivisor, totalStaked, perDay); ok {
		t.Fatal("missing shares must be unavailable")
	}
	if _, ok := YourRewardRate(shares, big.NewInt(0), totalStaked, perDay); ok {
		t.Fatal("zero divisor must be unavailable")
	}
}

func TestAllResolved(t *testing.T) {
	ok := querycache.Snapshot{Status: querycache.StatusSuccess}
	loading := querycache.Snapshot{Status: querycache.StatusLoading}

	if !AllResolved(ok, ok) {
		t.Fatal("all-success set should be resolved")
	}
	if AllResolved(ok, loading) {
		t.Fatal("a mid-refetch dependency must block metric computation")
	}
}
