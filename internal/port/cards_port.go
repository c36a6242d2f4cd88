package port

import (
	"context"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/google/uuid"
)

// CardStore handles card data operations.
// Lock* variants take a row lock for the rest of the enclosing transaction; outside one they behave like Find*.
type CardStore interface {
	FindCardByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)
	FindCardByNumber(ctx context.Context, number string) (*domain.Card, error)
	FindCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error)
	LockCard(ctx context.Context, id uuid.UUID) (*domain.Card, error)
	LockCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error)

	ListCards(ctx context.Context, page domain.Page) ([]domain.Card, int, error)
	ListCardsByOwner(ctx context.Context, userID uuid.UUID, filter domain.CardFilter, page domain.Page) ([]domain.Card, int, error)

	// SaveCard inserts the card when it is new and updates it otherwise.
	// A duplicate card number surfaces as *domain.ErrConflict.
	SaveCard(ctx context.Context, card *domain.Card) error
	DeleteCard(ctx context.Context, id uuid.UUID) error

	// ExpireCards marks every non-expired card whose expiry month is before cutoff as EXPIRED.
	ExpireCards(ctx context.Context, cutoff domain.YearMonth) (int64, error)
}
