package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Transfers & block requests
// ============================================================

// Transfer is an immutable record of a completed move between two cards of one user.
type Transfer struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"userId"`
	CardNumberFrom string          `json:"cardNumberFrom"`
	CardNumberTo   string          `json:"cardNumberTo"`
	Amount         decimal.Decimal `json:"amount"`
	TransferTime   time.Time       `json:"transferTime"`
}

// TransferRequest is the body for POST /api/cards.
type TransferRequest struct {
	CardNumberFrom string          `json:"cardNumberFrom" validate:"required,cardnumber"`
	CardNumberTo   string          `json:"cardNumberTo" validate:"required,cardnumber"`
	Amount         decimal.Decimal `json:"amount" validate:"intpos"`
}

// BlockRequest is an immutable record of a user blocking their own card.
// The status change is applied when the record is written; there is no approval step.
type BlockRequest struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"userId"`
	CardNumber  string     `json:"cardNumber"`
	ToStatus    CardStatus `json:"toStatus"`
	RequestTime time.Time  `json:"requestTime"`
}
