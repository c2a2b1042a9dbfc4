package dto

import (
	"time"

	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/service"
)

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateUserRequest payload.
type CreateUserRequest struct {
	Username    string  `json:"username" validate:"required,min=3,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Password    string  `json:"password" validate:"required,min=8"`
	IsSuperuser bool    `json:"is_superuser"`
}

// ToInput converts the request to the service input.
func (r CreateUserRequest) ToInput() service.CreateUserInput {
	return service.CreateUserInput{
		Username:    r.Username,
		Email:       r.Email,
		Password:    r.Password,
		IsSuperuser: r.IsSuperuser,
	}
}

// UserResponse is the API view of an operator.
type UserResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUserResponse maps a domain user. The password hash is never exposed.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// LoginResponse carries the bearer token and the operator it belongs to.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// NewLoginResponse maps a session.
func NewLoginResponse(session *domain.Session, user *domain.User) LoginResponse {
	return LoginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        NewUserResponse(user),
	}
}
