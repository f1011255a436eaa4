package db

import "time"

// Identity represents a database identity record (sign-in credentials)
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
