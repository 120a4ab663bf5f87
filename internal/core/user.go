package core

import "time"

// Identity providers a user can be registered with.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User is the account behind an owner id.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin"`
}
