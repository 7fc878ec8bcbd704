package models

import (
	"time"
)

// Account is the primary-credential account returned by the account store
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	HomeRegion   string // Established home-region marker for location checks, empty = use default
	Status       string // "active", "disabled"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
