package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is a liquidity provider's stake in a pool. SuppliedLiquidity and
// Shares come from the same positionMetadata read and are always replaced
// together; mixing the two across fetches is forbidden.
type Position struct {
	ChainID           uint64         `json:"chain_id"`
	PositionID        *big.Int       `json:"position_id"`
	TokenAddress      common.Address `json:"token_address"`
	SuppliedLiquidity *big.Int       `json:"supplied_liquidity"`
	Shares            *big.Int       `json:"shares"`
}

// AllowanceRecord is one (owner, token, spender) allowance read.
type AllowanceRecord struct {
	Owner     common.Address `json:"owner"`
	Token     common.Address `json:"token"`
	Spender   common.Address `json:"spender"`
	Allowance *big.Int       `json:"allowance"`
}

// MutationKind identifies a fund-moving call.
type MutationKind string

const (
	MutationApprove           MutationKind = "approve"
	MutationAddLiquidity      MutationKind = "addLiquidity"
	MutationIncreaseLiquidity MutationKind = "increaseLiquidity"
	MutationRemoveLiquidity   MutationKind = "removeLiquidity"
	MutationClaimFee          MutationKind = "claimFee"
)

// TxStatus is the lifecycle of a submitted transaction.
type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// PendingTransaction tracks one mutating call from submission until its
// confirmation has been observed and cache invalidation has run.
type PendingTransaction struct {
	Kind    MutationKind `json:"kind"`
	ChainID uint64       `json:"chain_id"`
	Hash    common.Hash  `json:"hash"`
	Label   string       `json:"label"`
	Status  TxStatus     `json:"status"`
}
