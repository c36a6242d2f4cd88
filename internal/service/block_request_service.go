package service

import (
	"context"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Block requests
// ============================================================

// RequestBlock blocks one of the caller's own cards and records the request.
// The status change is applied immediately; there is no approval step.
func (s *CardService) RequestBlock(ctx context.Context, username string, cardID uuid.UUID) (*domain.BlockRequest, error) {
	ctx, span := cardTracer.Start(ctx, "CardService.RequestBlock")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", username), attribute.String("card.id", cardID.String()))

	var out *domain.BlockRequest
	err := s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		user, err := tx.FindUserByName(ctx, username)
		if err != nil {
			return err
		}

		card, err := tx.LockCard(ctx, cardID)
		if err != nil {
			return err
		}
		if card.OwnerUserID != user.ID {
			return domain.CardNotFound(cardID.String())
		}
		if card.Status == domain.CardStatusBlocked {
			return &domain.ErrCardNotActive{CardNumber: card.CardNumber, Status: card.Status}
		}

		card.Status = domain.CardStatusBlocked
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}

		br := &domain.BlockRequest{
			ID:          uuid.New(),
			UserID:      user.ID,
			CardNumber:  card.CardNumber,
			ToStatus:    domain.CardStatusBlocked,
			RequestTime: time.Now().UTC(),
		}
		if err := tx.AppendBlockRequest(ctx, br); err != nil {
			return err
		}
		out = br
		return nil
	})
	if err != nil {
		s.metrics.IncrBlockRequest(domain.KindOf(err).String())
		return nil, err
	}

	s.metrics.IncrBlockRequest("completed")
	s.metrics.IncrCardStatusChange(domain.CardStatusBlocked)
	s.logger.Info("card blocked on user request",
		zap.String("card_id", cardID.String()),
		zap.String("user_id", out.UserID.String()),
	)
	return out, nil
}

// ListBlockRequests returns the block-request log, newest first.
func (s *CardService) ListBlockRequests(ctx context.Context, page domain.Page) (domain.PageResponse[domain.BlockRequest], error) {
	ctx, span := cardTracer.Start(ctx, "CardService.ListBlockRequests")
	defer span.End()

	requests, total, err := s.store.ListBlockRequests(ctx, page)
	if err != nil {
		return domain.PageResponse[domain.BlockRequest]{}, err
	}
	return domain.NewPageResponse(requests, page, total), nil
}
