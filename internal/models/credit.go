package models

import "time"

// Credit history entry_type enums.
const (
	CreditEntryPendingEarning = "pending_earning"
	CreditEntryPendingRelease = "pending_release"
	CreditEntryTaskEarning    = "task_earning"
	CreditEntryPlatformFee    = "platform_fee"
)

type CreditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EntryType string    `json:"entry_type"`
	Amount    Cents     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
