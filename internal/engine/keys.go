package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHub/internal/model"
	"liquidityHub/internal/orchestrator"
	"liquidityHub/internal/querycache"
)

// Logical cache key names. Parameters are rendered canonically so equal
// reads share one entry.
const (
	keyPositionMetadata  = "positionMetadata"
	keyTotalLiquidity    = "totalLiquidity"
	keyTokenAmount       = "tokenAmount"
	keyBaseDivisor       = "baseDivisor"
	keyTokenTotalCap     = "tokenTotalCap"
	keyTokenWalletCap    = "tokenWalletCap"
	keyLiquidityByLP     = "totalLiquidityByLP"
	keyAllowance         = "allowance"
	keyWalletBalance     = "walletBalance"
	keyTokenPrice        = "tokenPrice"
	keyPendingReward     = "pendingReward"
	keyRewardRate        = "rewardRatePerSecond"
	keyRewardToken       = "rewardTokenAddress"
	keyTotalSharesStaked = "totalSharesStaked"
	keySuppliedByToken   = "suppliedLiquidityByToken"
)

func positionKey(name string, chainID uint64, positionID *big.Int) querycache.Key {
	return querycache.Key{Name: name, Param: fmt.Sprintf("%d:%s", chainID, positionID)}
}

func tokenKey(name string, chainID uint64, token common.Address) querycache.Key {
	return querycache.Key{Name: name, Param: fmt.Sprintf("%d:%s", chainID, token.Hex())}
}

func ownerTokenKey(name string, chainID uint64, token, owner common.Address) querycache.Key {
	return querycache.Key{Name: name, Param: fmt.Sprintf("%d:%s:%s", chainID, token.Hex(), owner.Hex())}
}

func allowanceKey(chainID uint64, owner, token, spender common.Address) querycache.Key {
	return querycache.Key{
		Name:  keyAllowance,
		Param: fmt.Sprintf("%d:%s:%s:%s", chainID, owner.Hex(), token.Hex(), spender.Hex()),
	}
}

func priceKey(feedID string) querycache.Key {
	return querycache.Key{Name: keyTokenPrice, Param: feedID}
}

// declareDependencies registers the derivation edges: invalidating a
// dependency cascades into everything derived from it.
func declareDependencies(g *querycache.Graph) {
	// Redeemable amount is computed from the position's shares; stale
	// metadata must never be combined with a fresh share conversion.
	g.Declare(keyTokenAmount, keyPositionMetadata)
	// The deposit ceiling shrinks as the wallet's supplied liquidity grows.
	g.Declare(keyLiquidityByLP, keyTotalLiquidity)
}

// invalidations maps a confirmed mutation to the cache names (and params)
// made stale by it. Cascades through declared dependents are handled by the
// graph itself.
func (e *Engine) invalidations(r orchestrator.Request) {
	cfg, ok := r.Token.OnChain(r.Chain.ChainID)
	if !ok {
		return
	}
	tokenParam := fmt.Sprintf("%d:%s", r.Chain.ChainID, cfg.Address.Hex())

	switch r.Kind {
	case model.MutationAddLiquidity, model.MutationIncreaseLiquidity:
		e.graph.Invalidate(keyTotalLiquidity, tokenParam)
		e.graph.Invalidate(keyWalletBalance, "")
		e.graph.Invalidate(keyAllowance, "")
		if r.PositionID != nil {
			e.graph.Invalidate(keyPositionMetadata, fmt.Sprintf("%d:%s", r.Chain.ChainID, r.PositionID))
		} else {
			e.graph.Invalidate(keyPositionMetadata, "")
		}
	case model.MutationRemoveLiquidity:
		e.graph.Invalidate(keyTotalLiquidity, tokenParam)
		e.graph.Invalidate(keyWalletBalance, "")
		e.graph.Invalidate(keyPositionMetadata, fmt.Sprintf("%d:%s", r.Chain.ChainID, r.PositionID))
	case model.MutationClaimFee:
		e.graph.Invalidate(keyPositionMetadata, fmt.Sprintf("%d:%s", r.Chain.ChainID, r.PositionID))
		e.graph.Invalidate(keyPendingReward, "")
		e.graph.Invalidate(keyWalletBalance, "")
	}
}
