package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt statuses. VOID is terminal: no transition leaves it.
const (
	ReceiptStatusPending = "PENDING"
	ReceiptStatusPaid    = "PAID"
	ReceiptStatusVoid    = "VOID"
)

// Payment methods accepted for agency deposits
const (
	PaymentMethodCash         = "CASH"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
)

// Receipt is a credit-deposit receipt issued to a travel agency.
// receipt_number is unique and immutable once assigned; station_code and
// issued_by_name are snapshots of the acting user at creation time.
type Receipt struct {
	ID            string          `json:"id" db:"id"`
	ReceiptNumber string          `json:"receipt_number" db:"receipt_number"`
	AgencyRowID   string          `json:"-" db:"agency_id"`
	Agency        *AgencySummary  `json:"agency,omitempty"`
	UserID        string          `json:"-" db:"user_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	Status        string          `json:"status" db:"status"`
	IssueDate     string          `json:"issue_date" db:"issue_date"`
	IssueTime     string          `json:"issue_time" db:"issue_time"`
	PaymentDate   *time.Time      `json:"payment_date" db:"payment_date"`
	DueDate       *string         `json:"due_date,omitempty" db:"due_date"`
	VoidReason    *string         `json:"void_reason,omitempty" db:"void_reason"`
	VoidDate      *time.Time      `json:"void_date,omitempty" db:"void_date"`
	StationCode   string          `json:"station" db:"station_code"`
	IssuedByName  string          `json:"issued_by" db:"issued_by_name"`
	Remarks       *string         `json:"remarks,omitempty" db:"remarks"`
	QRCode        *string         `json:"qr_code,omitempty"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// IsVoid reports whether the receipt is in the terminal VOID state.
// There is no separate void flag: status is the single source of truth.
func (r *Receipt) IsVoid() bool {
	return r.Status == ReceiptStatusVoid
}
