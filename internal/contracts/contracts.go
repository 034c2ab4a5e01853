// Package contracts defines the signer/contract-call collaborators consumed
// by the engine, plus an eth_call/transaction implementation backed by the
// chain client. The engine only ever sees the interfaces; tests substitute
// fakes.
package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityHub/internal/model"
)

// TxHandle is a submitted transaction. WaitForConfirmations blocks until n
// confirmations have been observed and returns the receipt, or an error
// carrying TransactionReverted when on-chain execution failed.
type TxHandle interface {
	Hash() common.Hash
	WaitForConfirmations(ctx context.Context, n uint64) (*types.Receipt, error)
}

// Reader exposes the read-only contract surface: pool state, whitelist caps,
// farming state and ERC20 views. Implementations are bound to one chain.
type Reader interface {
	PositionMetadata(ctx context.Context, positionID *big.Int) (model.Position, error)
	TotalLiquidity(ctx context.Context, token common.Address) (*big.Int, error)
	TokenAmount(ctx context.Context, shares *big.Int, token common.Address) (*big.Int, error)
	SuppliedLiquidityByToken(ctx context.Context, token common.Address) (*big.Int, error)
	BaseDivisor(ctx context.Context) (*big.Int, error)

	TokenTotalCap(ctx context.Context, token common.Address) (*big.Int, error)
	TokenWalletCap(ctx context.Context, token common.Address) (*big.Int, error)
	TotalLiquidityByLP(ctx context.Context, token, owner common.Address) (*big.Int, error)

	PendingToken(ctx context.Context, positionID *big.Int) (*big.Int, error)
	RewardRatePerSecond(ctx context.Context, token common.Address) (*big.Int, error)
	RewardTokenAddress(ctx context.Context, token common.Address) (common.Address, error)
	TotalSharesStaked(ctx context.Context, token common.Address) (*big.Int, error)

	Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Signer exposes the fund-moving contract surface. Every call signs and
// submits a transaction and returns its handle; confirmation is the caller's
// concern.
type Signer interface {
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (TxHandle, error)
	AddLiquidity(ctx context.Context, token common.Address, amount *big.Int) (TxHandle, error)
	AddNativeLiquidity(ctx context.Context, amount *big.Int) (TxHandle, error)
	IncreaseLiquidity(ctx context.Context, positionID, amount *big.Int) (TxHandle, error)
	IncreaseNativeLiquidity(ctx context.Context, positionID, amount *big.Int) (TxHandle, error)
	RemoveLiquidity(ctx context.Context, positionID, amount *big.Int) (TxHandle, error)
	ClaimFee(ctx context.Context, positionID *big.Int) (TxHandle, error)
}
