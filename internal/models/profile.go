package models

import "time"

type PaymentMethod struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	Expiry    string `json:"expiry"`
	IsDefault bool   `json:"is_default"`
}

// Profile is a user's reward and balance record. Level is always derived
// from Points; Earnings is the confirmed balance and PendingEarnings the
// escrowed one.
type Profile struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	DisplayName     string          `json:"display_name"`
	Points          int             `json:"points"`
	Level           int             `json:"level"`
	TasksCompleted  int             `json:"tasks_completed"`
	TasksRequested  int             `json:"tasks_requested"`
	Earnings        Cents           `json:"earnings"`
	PendingEarnings Cents           `json:"pending_earnings"`
	Rating          float64         `json:"rating"`
	ReviewCount     int             `json:"review_count"`
	PaymentMethods  []PaymentMethod `json:"payment_methods"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PaymentMethods != nil {
		cp.PaymentMethods = append([]PaymentMethod(nil), p.PaymentMethods...)
	}
	return &cp
}
