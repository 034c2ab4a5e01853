// Package metrics computes derived financial figures from cache snapshots.
// Everything here is pure and recomputed on demand; when an input is missing
// the result is reported as unavailable, never as a fabricated zero.
package metrics

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"liquidityHub/internal/querycache"
)

const (
	// SecondsPerYear is the compounding horizon for reward APY.
	SecondsPerYear = 31536000
	// SecondsPerDay converts a per-second reward rate to a daily figure.
	SecondsPerDay = 86400
)

// AllResolved reports whether every snapshot is in the success state. Metric
// computations over a set of snapshots must bail out (render as loading) when
// any dependency is mid-refetch, so values from different fetch generations
// are never combined.
func AllResolved(snaps ...querycache.Snapshot) bool {
	for _, s := range snaps {
		if s.Status != querycache.StatusSuccess {
			return false
		}
	}
	return true
}

// PoolShareForDeposit is the hypothetical share a deposit of amount would
// hold: amount / (amount + totalLiquidity) * 100, rounded to two decimals.
// Zero when the amount is not positive or the total is unknown.
func PoolShareForDeposit(amount, totalLiquidity decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 || totalLiquidity.Sign() < 0 {
		return decimal.Zero
	}
	denom := amount.Add(totalLiquidity)
	if denom.Sign() == 0 {
		return decimal.Zero
	}
	return amount.Div(denom).Mul(decimal.NewFromInt(100)).Round(2)
}

// PoolShareOfPosition is an existing position's share of the pool:
// suppliedLiquidity / totalLiquidity * 100, rounded to two decimals.
func PoolShareOfPosition(suppliedLiquidity, totalLiquidity decimal.Decimal) decimal.Decimal {
	if suppliedLiquidity.Sign() <= 0 || totalLiquidity.Sign() <= 0 {
		return decimal.Zero
	}
	return suppliedLiquidity.Div(totalLiquidity).Mul(decimal.NewFromInt(100)).Round(2)
}

// UnclaimedFees is the raw fee balance: currentRedeemable - suppliedLiquidity.
// The result may be negative (rounding on-chain); DisplayUnclaimedFees floors
// it for presentation.
func UnclaimedFees(redeemable, suppliedLiquidity *big.Int) *big.Int {
	if redeemable == nil || suppliedLiquidity == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(redeemable, suppliedLiquidity)
}

// DisplayUnclaimedFees floors negative or missing fee balances at zero.
func DisplayUnclaimedFees(fees *big.Int) *big.Int {
	if fees == nil || fees.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(fees)
}

// RewardAPY compounds the per-second reward rate against the locked value:
// ((1 + rate/tvl)^SecondsPerYear - 1) * 100. Unavailable when either operand
// is missing or non-positive.
func RewardAPY(rewardRatePerSecondUSD, totalValueLockedUSD float64) (float64, bool) {
	if rewardRatePerSecondUSD <= 0 || totalValueLockedUSD <= 0 {
		return 0, false
	}
	apy := (math.Pow(1+rewardRatePerSecondUSD/totalValueLockedUSD, SecondsPerYear) - 1) * 100
	if math.IsInf(apy, 0) || math.IsNaN(apy) {
		return 0, false
	}
	return apy, true
}

// RewardsPerDay scales a per-second reward rate to a daily figure.
func RewardsPerDay(ratePerSecond decimal.Decimal) decimal.Decimal {
	return ratePerSecond.Mul(decimal.NewFromInt(SecondsPerDay))
}

// YourRewardRate is the caller's daily reward share:
// shares / baseDivisor / totalSharesStaked * rewardsPerDay. All four inputs
// are required; a missing or zero divisor yields unavailable rather than a
// misleading partial number.
func YourRewardRate(shares, baseDivisor, totalSharesStaked *big.Int, rewardsPerDay decimal.Decimal) (decimal.Decimal, bool) {
	if shares == nil || baseDivisor == nil || totalSharesStaked == nil {
		return decimal.Zero, false
	}
	if baseDivisor.Sign() == 0 || totalSharesStaked.Sign() == 0 || rewardsPerDay.Sign() < 0 {
		return decimal.Zero, false
	}

	share := decimal.NewFromBigInt(shares, 0).
		Div(decimal.NewFromBigInt(baseDivisor, 0)).
		Div(decimal.NewFromBigInt(totalSharesStaked, 0))
	return share.Mul(rewardsPerDay), true
}
