package domain

import "time"

// Default values applied to transactions that omit them.
const (
	DefaultCurrency          = "USD"
	DefaultTransactionStatus = "completed"
)

// Transaction models a transfer between two parties.
type Transaction struct {
	ID         string
	SenderID   string
	ReceiverID string
	Amount     float64
	Currency   string
	Timestamp  time.Time
	Status     string
	IPAddress  string
	DeviceID   string
	Metadata   map[string]any
}
