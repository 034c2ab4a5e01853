package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHub/internal/model"
)

// JsonlHistory appends transaction lifecycle records to a JSONL file. Used
// when no Postgres DSN is configured; every status change becomes its own
// line, so the file is an append-only audit trail rather than a table.
type JsonlHistory struct {
	path string
	mu   sync.Mutex
}

func NewJsonlHistory(path string) *JsonlHistory {
	return &JsonlHistory{path: path}
}

type jsonlRecord struct {
	model.PendingTransaction
	ObservedAt time.Time `json:"observed_at"`
}

func (s *JsonlHistory) RecordSubmitted(ctx context.Context, tx model.PendingTransaction) error {
	tx.Status = model.TxSubmitted
	return s.append(tx)
}

func (s *JsonlHistory) MarkStatus(ctx context.Context, chainID uint64, hash common.Hash, status model.TxStatus) error {
	return s.append(model.PendingTransaction{
		ChainID: chainID,
		Hash:    hash,
		Status:  status,
	})
}

func (s *JsonlHistory) append(tx model.PendingTransaction) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(jsonlRecord{PendingTransaction: tx, ObservedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write history record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}

	return nil
}
