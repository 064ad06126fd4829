// Package billing classifies the payment health of a student account from
// its committed financial aggregates. The classifier is pure: it never
// touches the store and is reused by every listing and reporting surface.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUpToDate    Status = "up_to_date"
	StatusInProgress  Status = "in_progress"
	StatusLate        Status = "late"
	StatusFullyUnpaid Status = "fully_unpaid"
	StatusCreditor    Status = "creditor"
	StatusUnspecified Status = "unspecified"
)

// AccountAggregates are one student's financial aggregates at a reference
// date, however they were computed.
type AccountAggregates struct {
	// HasDossier is false when no dossier (and therefore no tariff data)
	// exists at all.
	HasDossier bool
	// TotalDue is tariff plus prior balance across dossiers.
	TotalDue decimal.Decimal
	// TotalPaid is the sum of valid payments.
	TotalPaid decimal.Decimal
	// DueAndPast is the sum of installment amounts whose due date is on or
	// before the reference date.
	DueAndPast decimal.Decimal
	// LateInstallments counts installments past due and unpaid.
	LateInstallments int
	LastPaymentDate  *time.Time
}

// Classify returns exactly one status, first matching rule wins. Overpayment
// and paid-in-full are checked before lateness so a student who covered
// everything due is never reported late merely because a scheduled
// installment's date has passed administratively. An account that paid
// nothing while money was due is fully unpaid, not merely late.
func Classify(a AccountAggregates) Status {
	switch {
	case !a.HasDossier || a.TotalDue.Sign() <= 0:
		return StatusUnspecified
	case a.TotalPaid.GreaterThan(a.TotalDue):
		return StatusCreditor
	case a.TotalPaid.GreaterThanOrEqual(a.TotalDue):
		return StatusUpToDate
	case a.TotalPaid.Sign() == 0 && a.DueAndPast.Sign() > 0:
		return StatusFullyUnpaid
	case a.LateInstallments > 0 || a.TotalPaid.LessThan(a.DueAndPast):
		return StatusLate
	default:
		return StatusInProgress
	}
}
