package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Cards
// ============================================================

// CardStatus is the lifecycle state of a card.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// ParseCardStatus accepts only the three known statuses.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(s) {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return CardStatus(s), nil
	}
	return "", &ErrValidation{Field: "status", Message: "allowed values: ACTIVE, BLOCKED, EXPIRED"}
}

// CardNumberLength is the exact number of ASCII digits in a card number.
const CardNumberLength = 16

// Card is a bank card owned by exactly one user.
// Balance is an integer amount in the smallest currency unit.
type Card struct {
	ID          uuid.UUID       `json:"id"`
	CardNumber  string          `json:"cardNumber"`
	Status      CardStatus      `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	ExpiryDate  YearMonth       `json:"expiryDate"`
	OwnerUserID uuid.UUID       `json:"ownerUserId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// IsActive reports whether the card may take part in a transfer.
func (c *Card) IsActive() bool {
	return c.Status == CardStatusActive
}

// ValidCardNumber reports whether s is exactly 16 ASCII digits.
func ValidCardNumber(s string) bool {
	if len(s) != CardNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CreateCardRequest is the body for POST /api/admin/cards/{userId}.
type CreateCardRequest struct {
	CardNumber string          `json:"cardNumber" validate:"required,cardnumber"`
	Status     CardStatus      `json:"status" validate:"required,oneof=ACTIVE BLOCKED EXPIRED"`
	Balance    decimal.Decimal `json:"balance" validate:"intnonneg"`
	ExpiryDate YearMonth       `json:"expiryDate" validate:"required"`
}

// CardFilter narrows a user's card list. Every non-nil field must match exactly.
type CardFilter struct {
	CardNumber *string          `json:"cardNumber,omitempty" validate:"omitempty,cardnumber"`
	Status     *CardStatus      `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE BLOCKED EXPIRED"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
	ExpiryDate *YearMonth       `json:"expiryDate,omitempty"`
}

// Matches reports whether c satisfies every set field of f.
func (f CardFilter) Matches(c *Card) bool {
	if f.CardNumber != nil && *f.CardNumber != c.CardNumber {
		return false
	}
	if f.Status != nil && *f.Status != c.Status {
		return false
	}
	if f.Balance != nil && !f.Balance.Equal(c.Balance) {
		return false
	}
	if f.ExpiryDate != nil && *f.ExpiryDate != c.ExpiryDate {
		return false
	}
	return true
}

// BalanceResponse is returned by GET /api/cards/{id}/balance.
type BalanceResponse struct {
	CardID  uuid.UUID `json:"cardId"`
	Balance string    `json:"balance"`
}
