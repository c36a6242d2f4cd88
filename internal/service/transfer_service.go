package service

import (
	"context"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Card-to-card transfer
// ============================================================

// Transfer moves amount between two cards of the user named username.
//
// Checks run in a fixed order: same card, amount, user, ownership of both cards,
// both cards ACTIVE, and finally the resulting balances. The balance reads,
// both writes and the ledger append share one serializable transaction.
func (s *CardService) Transfer(ctx context.Context, username string, req *domain.TransferRequest) (*domain.Transfer, error) {
	ctx, span := cardTracer.Start(ctx, "CardService.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.name", username),
		attribute.String("transfer.amount", req.Amount.String()),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("transfer", time.Since(start)) }()

	transfer, err := s.transfer(ctx, username, req)
	if err != nil {
		kind := domain.KindOf(err)
		s.metrics.IncrTransfer(kind.String())
		s.logger.Warn("transfer rejected",
			zap.String("username", username),
			zap.String("reason", kind.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrTransfer("completed")
	s.logger.Info("transfer completed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("user_id", transfer.UserID.String()),
		zap.String("amount", transfer.Amount.String()),
	)
	return transfer, nil
}

func (s *CardService) transfer(ctx context.Context, username string, req *domain.TransferRequest) (*domain.Transfer, error) {
	if req.CardNumberFrom == req.CardNumberTo {
		return nil, &domain.ErrInvalidTransfer{Reason: "source and destination are the same card"}
	}
	if !req.Amount.IsInteger() || !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be a positive integer"}
	}

	var out *domain.Transfer
	err := s.store.InTx(ctx, port.IsolationSerializable, func(ctx context.Context, tx port.Repositories) error {
		user, err := tx.FindUserByName(ctx, username)
		if err != nil {
			return err
		}

		owned, err := tx.LockCardsByOwner(ctx, user.ID)
		if err != nil {
			return err
		}
		from := findByNumber(owned, req.CardNumberFrom)
		if from == nil {
			return domain.CardNotFound(req.CardNumberFrom)
		}
		to := findByNumber(owned, req.CardNumberTo)
		if to == nil {
			return domain.CardNotFound(req.CardNumberTo)
		}

		for _, c := range []*domain.Card{from, to} {
			if !c.IsActive() {
				return &domain.ErrCardNotActive{CardNumber: c.CardNumber, Status: c.Status}
			}
		}

		newFrom, newTo := applyTransfer(from.Balance, to.Balance, req.Amount)
		if newFrom.IsNegative() {
			return &domain.ErrNegativeBalance{CardNumber: from.CardNumber}
		}
		if newTo.IsNegative() {
			return &domain.ErrNegativeBalance{CardNumber: to.CardNumber}
		}

		from.Balance, to.Balance = newFrom, newTo
		if err := tx.SaveCard(ctx, from); err != nil {
			return err
		}
		if err := tx.SaveCard(ctx, to); err != nil {
			return err
		}

		t := &domain.Transfer{
			ID:             uuid.New(),
			UserID:         user.ID,
			CardNumberFrom: from.CardNumber,
			CardNumberTo:   to.CardNumber,
			Amount:         req.Amount,
			TransferTime:   time.Now().UTC(),
		}
		if err := tx.AppendTransfer(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyTransfer returns both balances after debiting from and crediting to.
func applyTransfer(from, to, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return from.Sub(amount), to.Add(amount)
}

func findByNumber(cards []domain.Card, number string) *domain.Card {
	for i := range cards {
		if cards[i].CardNumber == number {
			return &cards[i]
		}
	}
	return nil
}

// ListOwnTransfers returns the caller's transfer history, newest first.
func (s *CardService) ListOwnTransfers(ctx context.Context, username string, page domain.Page) (domain.PageResponse[domain.Transfer], error) {
	ctx, span := cardTracer.Start(ctx, "CardService.ListOwnTransfers")
	defer span.End()

	user, err := s.store.FindUserByName(ctx, username)
	if err != nil {
		return domain.PageResponse[domain.Transfer]{}, err
	}
	transfers, total, err := s.store.ListTransfersByUser(ctx, user.ID, page)
	if err != nil {
		return domain.PageResponse[domain.Transfer]{}, err
	}
	return domain.NewPageResponse(transfers, page, total), nil
}
