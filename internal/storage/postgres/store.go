package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityHub/internal/model"
)

// Store provides Postgres persistence for transaction history.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RecordSubmitted inserts a freshly submitted transaction. Re-recording the
// same hash refreshes its label and resets the status.
func (s *Store) RecordSubmitted(ctx context.Context, tx model.PendingTransaction) error {
	if tx.Hash == (common.Hash{}) {
		return fmt.Errorf("tx hash required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transaction_history (
			chain_id, tx_hash, kind, label, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (chain_id, tx_hash)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			label = EXCLUDED.label,
			status = EXCLUDED.status,
			updated_at = now()
	`,
		int64(tx.ChainID),
		tx.Hash.Hex(),
		string(tx.Kind),
		tx.Label,
		string(model.TxSubmitted),
	)
	return err
}

// MarkStatus moves a recorded transaction to its terminal status.
func (s *Store) MarkStatus(ctx context.Context, chainID uint64, hash common.Hash, status model.TxStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transaction_history
		SET status = $3, updated_at = now()
		WHERE chain_id = $1 AND tx_hash = $2
	`, int64(chainID), hash.Hex(), string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tx %s on chain %d not recorded", hash.Hex(), chainID)
	}
	return nil
}

// Recent returns the most recent transactions for a chain, newest first.
func (s *Store) Recent(ctx context.Context, chainID uint64, limit int) ([]model.PendingTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, kind, label, status
		FROM transaction_history
		WHERE chain_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, int64(chainID), limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingTransaction
	for rows.Next() {
		var (
			hashHex, kind, label, status string
		)
		if err := rows.Scan(&hashHex, &kind, &label, &status); err != nil {
			return nil, err
		}
		out = append(out, model.PendingTransaction{
			ChainID: chainID,
			Hash:    common.HexToHash(hashHex),
			Kind:    model.MutationKind(kind),
			Label:   label,
			Status:  model.TxStatus(status),
		})
	}
	return out, rows.Err()
}
