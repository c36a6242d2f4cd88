package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// repos runs every query against q, which is either the pool or an open transaction.
type repos struct {
	q sqlx.ExtContext
}

// ============================================================
// Cards
// ============================================================

// cardRow maps the cards table onto domain.Card.
type cardRow struct {
	ID          uuid.UUID        `db:"id"`
	CardNumber  string           `db:"card_number"`
	Status      string           `db:"status"`
	Balance     decimal.Decimal  `db:"balance"`
	ExpiryDate  domain.YearMonth `db:"expiry_date"`
	OwnerUserID uuid.UUID        `db:"owner_user_id"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

func (r cardRow) toDomain() domain.Card {
	return domain.Card{
		ID:          r.ID,
		CardNumber:  r.CardNumber,
		Status:      domain.CardStatus(r.Status),
		Balance:     r.Balance,
		ExpiryDate:  r.ExpiryDate,
		OwnerUserID: r.OwnerUserID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func cardsToDomain(rows []cardRow) []domain.Card {
	out := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

const cardColumns = `id, card_number, status, balance, expiry_date, owner_user_id, created_at, updated_at`

func (r repos) getCard(ctx context.Context, ref, query string, args ...any) (*domain.Card, error) {
	var row cardRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.CardNotFound(ref)
		}
		return nil, fmt.Errorf("query card %s: %w", ref, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (r repos) FindCardByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	return r.getCard(ctx, id.String(), `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
}

func (r repos) FindCardByNumber(ctx context.Context, number string) (*domain.Card, error) {
	return r.getCard(ctx, number, `SELECT `+cardColumns+` FROM cards WHERE card_number = $1`, number)
}

func (r repos) LockCard(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	return r.getCard(ctx, id.String(), `SELECT `+cardColumns+` FROM cards WHERE id = $1 FOR UPDATE`, id)
}

func (r repos) FindCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return r.selectCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE owner_user_id = $1 ORDER BY created_at, id`, userID)
}

// LockCardsByOwner locks the owner's cards in id order so concurrent transfers acquire locks consistently.
func (r repos) LockCardsByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	return r.selectCards(ctx, `SELECT `+cardColumns+` FROM cards WHERE owner_user_id = $1 ORDER BY id FOR UPDATE`, userID)
}

func (r repos) selectCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	var rows []cardRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	return cardsToDomain(rows), nil
}

func (r repos) ListCards(ctx context.Context, page domain.Page) ([]domain.Card, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM cards`); err != nil {
		return nil, 0, fmt.Errorf("count cards: %w", err)
	}

	cards, err := r.selectCards(ctx,
		`SELECT `+cardColumns+` FROM cards ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// ListCardsByOwner applies every non-nil filter field as an exact match.
func (r repos) ListCardsByOwner(ctx context.Context, userID uuid.UUID, f domain.CardFilter, page domain.Page) ([]domain.Card, int, error) {
	const where = ` WHERE owner_user_id = $1
		AND ($2::text IS NULL OR card_number = $2)
		AND ($3::text IS NULL OR status = $3)
		AND ($4::numeric IS NULL OR balance = $4)
		AND ($5::text IS NULL OR expiry_date = $5)`

	args := []any{userID, nullable(f.CardNumber), nullable(f.Status), nullable(f.Balance), nullable(f.ExpiryDate)}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM cards`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count owner cards: %w", err)
	}

	cards, err := r.selectCards(ctx,
		`SELECT `+cardColumns+` FROM cards`+where+` ORDER BY created_at, id LIMIT $6 OFFSET $7`,
		append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// SaveCard upserts by id and stamps CreatedAt/UpdatedAt on card.
func (r repos) SaveCard(ctx context.Context, card *domain.Card) error {
	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			card_number = EXCLUDED.card_number,
			status = EXCLUDED.status,
			balance = EXCLUDED.balance,
			expiry_date = EXCLUDED.expiry_date,
			owner_user_id = EXCLUDED.owner_user_id,
			updated_at = EXCLUDED.updated_at`,
		card.ID, card.CardNumber, string(card.Status), card.Balance, card.ExpiryDate,
		card.OwnerUserID, card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("save card %s: %w", card.ID, err))
	}
	return nil
}

func (r repos) DeleteCard(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Errorf("delete card %s: %w", id, err))
	}
	return requireAffected(res, domain.CardNotFound(id.String()))
}

func (r repos) ExpireCards(ctx context.Context, cutoff domain.YearMonth) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE cards SET status = 'EXPIRED', updated_at = NOW() WHERE status <> 'EXPIRED' AND expiry_date < $1`,
		cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("expire cards: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire cards: %w", err)
	}
	return n, nil
}

// nullable unwraps an optional filter value into a driver argument.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	switch v := any(*p).(type) {
	case domain.CardStatus:
		return string(v)
	case domain.YearMonth:
		return v.String()
	case decimal.Decimal:
		return v.String()
	default:
		return v
	}
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
