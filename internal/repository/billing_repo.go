package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scolaris/billing/internal/billing"
)

// BillingRepo computes the financial aggregates the payment-status classifier
// consumes. Committed payment rows double as the installment schedule: each
// one was a dated installment slot in the source export, and rows kept as
// unpaid mark installments whose money never arrived.
type BillingRepo struct {
	db *sql.DB
}

func NewBillingRepo(db *sql.DB) *BillingRepo {
	return &BillingRepo{db: db}
}

func (r *BillingRepo) AggregatesForStudent(ctx context.Context, studentID string, ref time.Time) (billing.AccountAggregates, error) {
	var agg billing.AccountAggregates

	var dossierCount int
	var totalDue float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CAST(base_price AS REAL) + CAST(prior_balance AS REAL)), 0)
		 FROM dossiers WHERE student_id = ?`, studentID).Scan(&dossierCount, &totalDue)
	if err != nil {
		return agg, fmt.Errorf("dossier aggregates: %w", err)
	}
	agg.HasDossier = dossierCount > 0
	agg.TotalDue = decimal.NewFromFloat(totalDue)

	var totalPaid, dueAndPast float64
	var lateCount int
	var lastPaid sql.NullString
	refStr := ref.UTC().Format(time.RFC3339)
	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN p.status = 'valide' THEN CAST(p.amount AS REAL) ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.payment_date <= ? THEN CAST(p.amount AS REAL) ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.status = 'impaye' AND p.payment_date <= ? THEN 1 ELSE 0 END), 0),
			MAX(CASE WHEN p.status = 'valide' THEN p.payment_date END)
		 FROM payments p
		 JOIN dossiers d ON p.dossier_id = d.id
		 WHERE d.student_id = ?`, refStr, refStr, studentID).
		Scan(&totalPaid, &dueAndPast, &lateCount, &lastPaid)
	if err != nil {
		return agg, fmt.Errorf("payment aggregates: %w", err)
	}

	agg.TotalPaid = decimal.NewFromFloat(totalPaid)
	agg.DueAndPast = decimal.NewFromFloat(dueAndPast)
	agg.LateInstallments = lateCount
	if lastPaid.Valid {
		t, _ := time.Parse(time.RFC3339, lastPaid.String)
		agg.LastPaymentDate = &t
	}
	return agg, nil
}

// DashboardTotals holds the aggregate financial counters of the console
// dashboard.
type DashboardTotals struct {
	Students     int     `json:"students"`
	Dossiers     int     `json:"dossiers"`
	Payments     int     `json:"payments"`
	TotalDue     float64 `json:"total_due"`
	CollectedSum float64 `json:"collected"`
	UnpaidSum    float64 `json:"unpaid"`
}

func (r *BillingRepo) GetDashboardTotals(ctx context.Context) (*DashboardTotals, error) {
	t := &DashboardTotals{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM dossiers),
			(SELECT COUNT(*) FROM payments),
			(SELECT COALESCE(SUM(CAST(base_price AS REAL) + CAST(prior_balance AS REAL)), 0) FROM dossiers),
			(SELECT COALESCE(SUM(CASE WHEN status = 'valide' THEN CAST(amount AS REAL) ELSE 0 END), 0) FROM payments),
			(SELECT COALESCE(SUM(CASE WHEN status = 'impaye' THEN CAST(amount AS REAL) ELSE 0 END), 0) FROM payments)
	`).Scan(&t.Students, &t.Dossiers, &t.Payments, &t.TotalDue, &t.CollectedSum, &t.UnpaidSum)
	if err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	return t, nil
}
