package identity

import "time"

// User represents a registered savings-circle member.
type User struct {
	ID           string
	CountryCode  string
	Phone        string
	Tier         string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Credentials request structure.
type Credentials struct {
	CountryCode string
	Phone       string
	PIN         string
	DeviceID    string
}
