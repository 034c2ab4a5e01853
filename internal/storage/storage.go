package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHub/internal/model"
)

// History persists the lifecycle of submitted transactions.
type History interface {
	RecordSubmitted(ctx context.Context, tx model.PendingTransaction) error
	MarkStatus(ctx context.Context, chainID uint64, hash common.Hash, status model.TxStatus) error
}
