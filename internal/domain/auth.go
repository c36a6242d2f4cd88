package domain

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================
// Users & roles
// ============================================================

// Role is a closed set of authorization roles.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// ParseRole maps a stored or submitted role name onto the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", &ErrNotFound{Resource: "role", ID: s}
}

// Capability is an action gated by role.
type Capability int

const (
	// CapOwnCards covers viewing own cards, transfers, balance and block requests.
	CapOwnCards Capability = iota
	// CapManageCards covers creating, deleting, activating and blocking any card.
	CapManageCards
	// CapManageUsers covers user administration.
	CapManageUsers
)

func (c Capability) String() string {
	switch c {
	case CapOwnCards:
		return "own_cards"
	case CapManageCards:
		return "manage_cards"
	case CapManageUsers:
		return "manage_users"
	}
	return "unknown"
}

// Can reports whether the role grants capability c.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		switch c {
		case CapOwnCards, CapManageCards, CapManageUsers:
			return true
		}
	case RoleUser:
		switch c {
		case CapOwnCards:
			return true
		case CapManageCards, CapManageUsers:
			return false
		}
	}
	return false
}

// User is an account holder or administrator.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal is the authenticated caller resolved by the auth middleware.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

// UserRequest is the body for POST /api/admin/users and PATCH /api/admin/users/{id}.
type UserRequest struct {
	Name     string `json:"name" validate:"required,min=5,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=5,max=50"`
	Role     string `json:"role" validate:"required"`
}

// UserPatchRequest carries optional fields for a partial user update.
type UserPatchRequest struct {
	Name     string `json:"name" validate:"omitempty,min=5,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=5,max=50"`
	Role     string `json:"role"`
}

// ============================================================
// Auth: Request / Response types
// ============================================================

// SignUpRequest is the body for POST /auth/sign-up.
type SignUpRequest struct {
	Username string `json:"username" validate:"required,min=5,max=50"`
	Email    string `json:"email" validate:"required,min=5,max=50,email"`
	Password string `json:"password" validate:"required,min=5,max=50"`
}

// SignInRequest is the body for POST /auth/sign-in.
type SignInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by both sign-up and sign-in.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}
