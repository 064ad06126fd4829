package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scolaris/billing/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const insertPaymentSQL = `INSERT INTO payments
	(id, dossier_id, amount, method, payment_date, piece_number, status,
	 raw_date, created_at)
	VALUES (?,?,?,?,?,?,?,?,?)`

func paymentArgs(p *domain.Payment) []any {
	return []any{
		p.ID, p.DossierID, p.Amount.String(), p.Method,
		p.PaymentDate.Format(time.RFC3339), nullable(p.PieceNumber),
		string(p.Status), nullable(p.RawDate),
		p.CreatedAt.Format(time.RFC3339),
	}
}

// InsertChunk inserts all payments in one transaction: either every row of
// the chunk lands or none does. The bulk writer falls back to InsertOne on
// failure.
func (r *PaymentRepo) InsertChunk(ctx context.Context, payments []domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPaymentSQL)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range payments {
		if _, err := stmt.ExecContext(ctx, paymentArgs(&payments[i])...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PaymentRepo) InsertOne(ctx context.Context, p *domain.Payment) error {
	if _, err := r.db.ExecContext(ctx, insertPaymentSQL, paymentArgs(p)...); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) ListByDossier(ctx context.Context, dossierID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, dossier_id, amount, method, payment_date, piece_number,
		       status, raw_date, created_at
		 FROM payments WHERE dossier_id = ? ORDER BY payment_date`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// SumsByDossier returns the total committed payment amount per dossier for
// the given dossier ids (valid and unpaid rows alike).
func (r *PaymentRepo) SumsByDossier(ctx context.Context, dossierIDs []string) (map[string]decimal.Decimal, error) {
	sums := make(map[string]decimal.Decimal, len(dossierIDs))
	if len(dossierIDs) == 0 {
		return sums, nil
	}

	placeholders := strings.Repeat("?,", len(dossierIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(dossierIDs))
	for i, id := range dossierIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT dossier_id, COALESCE(SUM(CAST(amount AS REAL)), 0)
		 FROM payments WHERE dossier_id IN (`+placeholders+`) GROUP BY dossier_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var sum float64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		sums[id] = decimal.NewFromFloat(sum)
	}
	return sums, rows.Err()
}

func (r *PaymentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments").Scan(&count)
	return count, err
}

func scanPayment(rows *sql.Rows) (*domain.Payment, error) {
	var p domain.Payment
	var amount, status, paymentDate, createdAt string
	var piece, rawDate sql.NullString

	err := rows.Scan(&p.ID, &p.DossierID, &amount, &p.Method, &paymentDate,
		&piece, &status, &rawDate, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Amount, _ = decimal.NewFromString(amount)
	p.Status = domain.PaymentStatus(status)
	p.PieceNumber = piece.String
	p.RawDate = rawDate.String
	p.PaymentDate, _ = time.Parse(time.RFC3339, paymentDate)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}
