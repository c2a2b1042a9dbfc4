package domain

import "time"

// User is an operator allowed to manage tokens.
type User struct {
	ID           string
	Username     string
	Email        *string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
