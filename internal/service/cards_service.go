// Package service provides the business logic layer (use cases).
// CardService owns the card lifecycle, card-to-card transfers and block requests;
// UserService and AuthService cover user administration and authentication.
package service

import (
	"context"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var cardTracer = otel.Tracer("service/cards")

// CardService orchestrates card operations on top of the transactional store.
type CardService struct {
	store   port.Store
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCardService creates a new card service.
func NewCardService(store port.Store, metrics *observability.Metrics, logger *zap.Logger) *CardService {
	return &CardService{store: store, metrics: metrics, logger: logger}
}

// ============================================================
// Lifecycle: admin only, enforced by the router
// ============================================================

// Activate sets the card to ACTIVE. Activating an active card succeeds unchanged.
func (s *CardService) Activate(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	return s.setStatus(ctx, "CardService.Activate", cardID, domain.CardStatusActive)
}

// Block sets the card to BLOCKED. Blocking a blocked card succeeds unchanged.
func (s *CardService) Block(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	return s.setStatus(ctx, "CardService.Block", cardID, domain.CardStatusBlocked)
}

func (s *CardService) setStatus(ctx context.Context, op string, cardID uuid.UUID, status domain.CardStatus) (*domain.Card, error) {
	ctx, span := cardTracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("card.id", cardID.String()), attribute.String("card.status", string(status)))

	var updated *domain.Card
	err := s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		card, err := tx.LockCard(ctx, cardID)
		if err != nil {
			return err
		}
		card.Status = status
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}
		updated = card
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrCardStatusChange(status)
	s.logger.Info("card status changed",
		zap.String("card_id", cardID.String()),
		zap.String("status", string(status)),
	)
	return updated, nil
}

// ============================================================
// Admin card management
// ============================================================

// CreateCard issues a card to the given user.
func (s *CardService) CreateCard(ctx context.Context, userID uuid.UUID, req *domain.CreateCardRequest) (*domain.Card, error) {
	ctx, span := cardTracer.Start(ctx, "CardService.CreateCard")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID.String()))

	if !domain.ValidCardNumber(req.CardNumber) {
		return nil, &domain.ErrValidation{Field: "cardNumber", Message: "must be exactly 16 digits"}
	}
	status, err := domain.ParseCardStatus(string(req.Status))
	if err != nil {
		return nil, err
	}
	if !req.Balance.IsInteger() || req.Balance.IsNegative() {
		return nil, &domain.ErrValidation{Field: "balance", Message: "must be a non-negative integer"}
	}
	if req.ExpiryDate.IsZero() {
		return nil, &domain.ErrValidation{Field: "expiryDate", Message: "required"}
	}

	card := &domain.Card{
		ID:          uuid.New(),
		CardNumber:  req.CardNumber,
		Status:      status,
		Balance:     req.Balance,
		ExpiryDate:  req.ExpiryDate,
		OwnerUserID: userID,
	}

	err = s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		if _, err := tx.FindUserByID(ctx, userID); err != nil {
			return err
		}
		return tx.SaveCard(ctx, card)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("card created",
		zap.String("card_id", card.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(card.Status)),
	)
	return card, nil
}

// DeleteCard removes a card that no transfer references.
func (s *CardService) DeleteCard(ctx context.Context, cardID uuid.UUID) error {
	ctx, span := cardTracer.Start(ctx, "CardService.DeleteCard")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	err := s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		card, err := tx.LockCard(ctx, cardID)
		if err != nil {
			return err
		}
		n, err := tx.CountTransfersByCard(ctx, card.CardNumber)
		if err != nil {
			return err
		}
		if n > 0 {
			return &domain.ErrConflict{Message: "card has transfer history and cannot be deleted"}
		}
		return tx.DeleteCard(ctx, cardID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("card deleted", zap.String("card_id", cardID.String()))
	return nil
}

// ListCards returns every card, paged.
func (s *CardService) ListCards(ctx context.Context, page domain.Page) (domain.PageResponse[domain.Card], error) {
	ctx, span := cardTracer.Start(ctx, "CardService.ListCards")
	defer span.End()

	cards, total, err := s.store.ListCards(ctx, page)
	if err != nil {
		return domain.PageResponse[domain.Card]{}, err
	}
	return domain.NewPageResponse(cards, page, total), nil
}

// ============================================================
// Owner views
// ============================================================

// ListOwnCards returns the caller's cards, paged.
func (s *CardService) ListOwnCards(ctx context.Context, username string, page domain.Page) (domain.PageResponse[domain.Card], error) {
	return s.FilterOwnCards(ctx, username, domain.CardFilter{}, page)
}

// FilterOwnCards returns the caller's cards matching every set field of f.
func (s *CardService) FilterOwnCards(ctx context.Context, username string, f domain.CardFilter, page domain.Page) (domain.PageResponse[domain.Card], error) {
	ctx, span := cardTracer.Start(ctx, "CardService.FilterOwnCards")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", username))

	user, err := s.store.FindUserByName(ctx, username)
	if err != nil {
		return domain.PageResponse[domain.Card]{}, err
	}

	cards, total, err := s.store.ListCardsByOwner(ctx, user.ID, f, page)
	if err != nil {
		return domain.PageResponse[domain.Card]{}, err
	}
	return domain.NewPageResponse(cards, page, total), nil
}

// GetBalance returns the balance of one of the caller's cards.
// A card owned by someone else is reported as not found.
func (s *CardService) GetBalance(ctx context.Context, cardID uuid.UUID, username string) (*domain.BalanceResponse, error) {
	ctx, span := cardTracer.Start(ctx, "CardService.GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("get_balance", time.Since(start)) }()

	user, err := s.store.FindUserByName(ctx, username)
	if err != nil {
		return nil, err
	}
	card, err := s.store.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.OwnerUserID != user.ID {
		s.logger.Debug("balance requested for foreign card",
			zap.String("card_id", cardID.String()),
			zap.String("username", username),
		)
		return nil, domain.CardNotFound(cardID.String())
	}

	return &domain.BalanceResponse{CardID: card.ID, Balance: card.Balance.String()}, nil
}
