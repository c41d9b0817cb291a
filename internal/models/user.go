package models

import "time"

// User is a registered account. PasswordHash is a bcrypt hash and never leaves the server.
type User struct {
	UserID       int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Active       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the public profile snapshot of the user.
func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.UserID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Active:    u.Active,
	}
}
