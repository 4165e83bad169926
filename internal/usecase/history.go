package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/lendflow/internal/domain"
	"go.uber.org/zap"
)

// TxLog records every step attempt. A nil repository only logs.
type TxLog struct {
	repo   domain.TxHistoryRepository
	logger *zap.Logger

	newID   func() string
	timeNow func() time.Time
}

func NewTxLog(repo domain.TxHistoryRepository, logger *zap.Logger) *TxLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxLog{
		repo:    repo,
		logger:  logger,
		newID:   uuid.NewString,
		timeNow: time.Now,
	}
}

func (l *TxLog) Record(ctx context.Context, req domain.TxRequest, step, txHash string, err error) {
	rec := &domain.TxRecord{
		ID:        l.newID(),
		Chain:     req.Chain,
		Market:    req.Market,
		Account:   domain.NormalizeAccount(req.Account),
		FormType:  req.FormType,
		Step:      step,
		Status:    domain.TxStatusSucceeded,
		TxHash:    txHash,
		CreatedAt: l.timeNow(),
	}
	if err != nil {
		rec.Status = domain.TxStatusFailed
		rec.Error = err.Error()
		l.logger.Error("Transaction step failed",
			zap.String("chain", string(req.Chain)),
			zap.String("market", req.Market),
			zap.String("form", string(req.FormType)),
			zap.String("step", step),
			zap.Error(err))
	} else {
		l.logger.Info("Transaction step submitted",
			zap.String("chain", string(req.Chain)),
			zap.String("market", req.Market),
			zap.String("form", string(req.FormType)),
			zap.String("step", step),
			zap.String("tx_hash", txHash))
	}

	if l.repo == nil {
		return
	}
	if err := l.repo.SaveTxRecord(ctx, rec); err != nil {
		l.logger.Warn("Failed to save tx record", zap.String("id", rec.ID), zap.Error(err))
	}
}

func (l *TxLog) List(ctx context.Context, account string, limit int) ([]*domain.TxRecord, error) {
	if l.repo == nil {
		return nil, nil
	}
	return l.repo.ListTxRecords(ctx, domain.NormalizeAccount(account), limit)
}
