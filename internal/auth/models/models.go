package models

import (
	"time"
)

// User is a credential record. PasswordHash is a bcrypt hash and never
// leaves the service layer.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
}

// LoginResult is what a successful login produces.
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// RefreshResult carries the re-issued access token and its owner.
type RefreshResult struct {
	User        *User
	AccessToken string
}
