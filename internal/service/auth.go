package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost     = bcrypt.DefaultCost
	tokenIssuer    = "bankcards-api"
	principalCache = "principal"
)

// Same message for unknown user and wrong password.
const invalidCredentials = "invalid username or password"

// AuthService handles sign-up, sign-in and access-token validation.
type AuthService struct {
	store      port.Store
	principals port.Cache[domain.Principal]
	jwtSecret  []byte
	accessTTL  time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.Store, principals port.Cache[domain.Principal], jwtSecret string, accessTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		principals: principals,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		metrics:    metrics,
		logger:     logger,
	}
}

// ============================================================
// SignUp: POST /auth/sign-up
// ============================================================

// SignUp registers a ROLE_USER account and returns an access token for it.
func (s *AuthService) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.TokenResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.SignUp")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", req.Username))

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()), zap.String("username", user.Name))
	return s.issueToken(user)
}

// ============================================================
// SignIn: POST /auth/sign-in
// ============================================================

// SignIn checks the password and returns a fresh access token.
func (s *AuthService) SignIn(ctx context.Context, req *domain.SignInRequest) (*domain.TokenResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.SignIn")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", req.Username))

	user, err := s.store.FindUserByName(ctx, req.Username)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			s.logger.Warn("sign-in: unknown user", zap.String("username", req.Username))
			return nil, &domain.ErrUnauthorized{Message: invalidCredentials}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("sign-in: wrong password", zap.String("user_id", user.ID.String()))
		return nil, &domain.ErrUnauthorized{Message: invalidCredentials}
	}

	s.logger.Info("user signed in", zap.String("user_id", user.ID.String()))
	return s.issueToken(user)
}

// EnsureAdmin creates the bootstrap administrator unless a user with that name exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.EnsureAdmin")
	defer span.End()

	_, err := s.store.FindUserByName(ctx, name)
	if err == nil {
		s.logger.Debug("bootstrap admin already present", zap.String("username", name))
		return nil
	}
	if domain.KindOf(err) != domain.KindNotFound {
		return fmt.Errorf("look up bootstrap admin: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	admin := &domain.User{ID: uuid.New(), Name: name, Email: email, PasswordHash: hash, Role: domain.RoleAdmin}
	if err := s.store.SaveUser(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.Info("bootstrap admin created", zap.String("user_id", admin.ID.String()), zap.String("username", name))
	return nil
}

// ============================================================
// Token validation: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens. Subject carries the username.
type JWTClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// ValidateAccessToken verifies signature, expiry and token type.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}

// Authenticate validates the bearer token and resolves the caller.
// The role comes from the user record, not the token, so role changes apply once the cache entry is dropped.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}

	// A freed username can be taken by a new account; the token stays bound to the id it was issued for.
	if p, ok := s.principals.Get(claims.Subject); ok {
		s.metrics.IncrCacheHit(principalCache)
		if p.UserID != userID {
			return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
		}
		return &p, nil
	}
	s.metrics.IncrCacheMiss(principalCache)

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
		}
		return nil, err
	}
	if user.Name != claims.Subject {
		return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
	}

	p := domain.Principal{UserID: user.ID, Username: user.Name, Role: user.Role}
	s.principals.Set(user.Name, p)
	return &p, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) issueToken(user *domain.User) (*domain.TokenResponse, error) {
	token, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &domain.TokenResponse{Token: token, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

func (s *AuthService) signAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   string(user.Role),
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
