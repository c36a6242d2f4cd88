package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ============================================================
// Transfers
// ============================================================

type transferRow struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	CardNumberFrom string          `db:"card_number_from"`
	CardNumberTo   string          `db:"card_number_to"`
	Amount         decimal.Decimal `db:"amount"`
	TransferTime   time.Time       `db:"transfer_time"`
}

func (r repos) AppendTransfer(ctx context.Context, t *domain.Transfer) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transfers (id, user_id, card_number_from, card_number_to, amount, transfer_time)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.CardNumberFrom, t.CardNumberTo, t.Amount, t.TransferTime,
	)
	if err != nil {
		return mapError(fmt.Errorf("insert transfer: %w", err))
	}
	return nil
}

// ListTransfersByUser returns the user's transfers newest first.
func (r repos) ListTransfersByUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.Transfer, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM transfers WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	var rows []transferRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, user_id, card_number_from, card_number_to, amount, transfer_time
		FROM transfers
		WHERE user_id = $1
		ORDER BY transfer_time DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query transfers: %w", err)
	}

	out := make([]domain.Transfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Transfer(row))
	}
	return out, total, nil
}

func (r repos) CountTransfersByCard(ctx context.Context, cardNumber string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n,
		`SELECT COUNT(*) FROM transfers WHERE card_number_from = $1 OR card_number_to = $1`, cardNumber)
	if err != nil {
		return 0, fmt.Errorf("count card transfers: %w", err)
	}
	return n, nil
}

// ============================================================
// Block requests
// ============================================================

type blockRequestRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	CardNumber  string    `db:"card_number"`
	ToStatus    string    `db:"to_status"`
	RequestTime time.Time `db:"request_time"`
}

func (r repos) AppendBlockRequest(ctx context.Context, br *domain.BlockRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO block_requests (id, user_id, card_number, to_status, request_time)
		VALUES ($1, $2, $3, $4, $5)`,
		br.ID, br.UserID, br.CardNumber, string(br.ToStatus), br.RequestTime,
	)
	if err != nil {
		return mapError(fmt.Errorf("insert block request: %w", err))
	}
	return nil
}

// ListBlockRequests returns the whole log newest first.
func (r repos) ListBlockRequests(ctx context.Context, page domain.Page) ([]domain.BlockRequest, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM block_requests`); err != nil {
		return nil, 0, fmt.Errorf("count block requests: %w", err)
	}

	var rows []blockRequestRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, user_id, card_number, to_status, request_time
		FROM block_requests
		ORDER BY request_time DESC, id DESC
		LIMIT $1 OFFSET $2`,
		page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query block requests: %w", err)
	}

	out := make([]domain.BlockRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.BlockRequest{
			ID:          row.ID,
			UserID:      row.UserID,
			CardNumber:  row.CardNumber,
			ToStatus:    domain.CardStatus(row.ToStatus),
			RequestTime: row.RequestTime,
		})
	}
	return out, total, nil
}
