// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/google/uuid"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// UserStore persists users. Name and email are unique; violations surface as *domain.ErrConflict.
type UserStore interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindUserByName(ctx context.Context, name string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SaveUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// TransferLedger is the append-only log of completed transfers.
type TransferLedger interface {
	AppendTransfer(ctx context.Context, t *domain.Transfer) error
	ListTransfersByUser(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.Transfer, int, error)
	CountTransfersByCard(ctx context.Context, cardNumber string) (int, error)
}

// BlockRequestLog is the append-only log of user block requests.
type BlockRequestLog interface {
	AppendBlockRequest(ctx context.Context, r *domain.BlockRequest) error
	ListBlockRequests(ctx context.Context, page domain.Page) ([]domain.BlockRequest, int, error)
}

// Repositories groups every store reachable inside one transaction.
type Repositories interface {
	CardStore
	UserStore
	TransferLedger
	BlockRequestLog
}

// Isolation selects the transaction isolation level.
type Isolation int

const (
	IsolationDefault Isolation = iota
	IsolationSerializable
)

// Store is the transactional datastore backing every service.
type Store interface {
	Repositories

	// InTx runs fn as one atomic unit. If fn returns an error nothing it wrote is kept.
	// Serialization conflicts are retried by the implementation; fn must therefore be safe to re-run.
	InTx(ctx context.Context, iso Isolation, fn func(ctx context.Context, tx Repositories) error) error

	Ping(ctx context.Context) error
}
