package service

import (
	"context"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var userTracer = otel.Tracer("service/users")

// UserService handles user administration.
// It drops cached principals whenever a user's name, role or existence changes.
type UserService struct {
	store      port.Store
	principals port.Cache[domain.Principal]
	logger     *zap.Logger
}

// NewUserService creates a new user service.
func NewUserService(store port.Store, principals port.Cache[domain.Principal], logger *zap.Logger) *UserService {
	return &UserService{store: store, principals: principals, logger: logger}
}

// CreateUser adds a user with the requested role. An unknown role is reported as not found.
func (s *UserService) CreateUser(ctx context.Context, req *domain.UserRequest) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", req.Name))

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{ID: uuid.New(), Name: req.Name, Email: req.Email, PasswordHash: hash, Role: role}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return user, nil
}

// UpdateUser applies the non-empty fields of req.
func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, req *domain.UserPatchRequest) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id.String()))

	var role domain.Role
	if req.Role != "" {
		r, err := domain.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	var hash string
	if req.Password != "" {
		h, err := hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	var (
		updated *domain.User
		oldName string
	)
	err := s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		user, err := tx.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		oldName = user.Name

		if req.Name != "" {
			user.Name = req.Name
		}
		if req.Email != "" {
			user.Email = req.Email
		}
		if hash != "" {
			user.PasswordHash = hash
		}
		if role != "" {
			user.Role = role
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.principals.Delete(oldName)
	s.principals.Delete(updated.Name)
	s.logger.Info("user updated", zap.String("user_id", id.String()))
	return updated, nil
}

// DeleteUser removes a user that owns no cards and has no history.
func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, span := userTracer.Start(ctx, "UserService.DeleteUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id.String()))

	var name string
	err := s.store.InTx(ctx, port.IsolationDefault, func(ctx context.Context, tx port.Repositories) error {
		user, err := tx.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		name = user.Name
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}

	s.principals.Delete(name)
	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.GetUser")
	defer span.End()

	return s.store.FindUserByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, span := userTracer.Start(ctx, "UserService.ListUsers")
	defer span.End()

	return s.store.ListUsers(ctx)
}
