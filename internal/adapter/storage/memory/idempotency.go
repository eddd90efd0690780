package memory

import (
	"context"

	"referral-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct{ s *Store }

func (r *IdempotencyRepo) Claim(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.idempotency[log.Key]; ok {
		return false, nil
	}
	cp := *log
	r.s.idempotency[log.Key] = &cp
	record(tx, func() { delete(r.s.idempotency, log.Key) })
	return true, nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	log, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *log
	return &cp, nil
}

// ProcessedTxRepo implements ports.ProcessedTxRepository.
type ProcessedTxRepo struct{ s *Store }

func (r *ProcessedTxRepo) Claim(ctx context.Context, tx pgx.Tx, p *domain.ProcessedChainTx) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.processed[p.TxHash]; ok {
		return false, nil
	}
	cp := *p
	r.s.processed[p.TxHash] = &cp
	record(tx, func() { delete(r.s.processed, p.TxHash) })
	return true, nil
}

func (r *ProcessedTxRepo) Exists(ctx context.Context, txHash string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.processed[txHash]
	return ok, nil
}
