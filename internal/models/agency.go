package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agency represents a partner travel agency eligible to receive receipts
type Agency struct {
	ID           string           `json:"id" db:"id"`
	AgencyID     string           `json:"agency_id" db:"agency_id"`
	AgencyName   string           `json:"agency_name" db:"agency_name"`
	ContactEmail *string          `json:"contact_email" db:"contact_email"`
	ContactPhone *string          `json:"contact_phone" db:"contact_phone"`
	CreditLimit  *decimal.Decimal `json:"credit_limit,omitempty" db:"credit_limit"`
	IsActive     bool             `json:"is_active" db:"is_active"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// AgencySummary is the denormalized agency block embedded in receipt responses
type AgencySummary struct {
	ID           string  `json:"id,omitempty"`
	AgencyID     string  `json:"agency_id"`
	AgencyName   string  `json:"agency_name"`
	ContactEmail *string `json:"contact_email,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty"`
}

// AgencyUpsert is one row of a single or bulk agency import
type AgencyUpsert struct {
	AgencyName   string  `json:"agency_name"`
	AgencyID     string  `json:"agency_id"`
	ContactEmail *string `json:"contact_email"`
	IsActive     *bool   `json:"is_active"`
}
