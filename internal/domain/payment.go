package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentValid  PaymentStatus = "valide"
	PaymentUnpaid PaymentStatus = "impaye"
)

// MethodUnspecified is the sentinel payment method used when a slot carries
// an amount but no recognizable method column value.
const MethodUnspecified = "non_precise"

type Payment struct {
	ID          string          `json:"id"`
	DossierID   string          `json:"dossier_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaymentDate time.Time       `json:"payment_date"`
	PieceNumber string          `json:"piece_number,omitempty"`
	Status      PaymentStatus   `json:"status"`
	// RawDate keeps the offending source text when the date could not be
	// parsed and the payment was retained as unpaid.
	RawDate   string    `json:"raw_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProspectivePayment is one parsed installment slot before persistence.
// Slot 1 is the deposit; slots 2-13 are numbered installments.
type ProspectivePayment struct {
	Slot        int
	Amount      decimal.Decimal
	Method      string
	Date        time.Time
	DateInvalid bool
	RawAmount   string
	RawDate     string
	PieceNumber string
	Status      PaymentStatus
}
