package domain

import "time"

// Session describes an issued access token.
type Session struct {
	ID        string
	UserID    string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
