package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scolaris/billing/internal/domain"
)

type DossierRepo struct {
	db *sql.DB
}

func NewDossierRepo(db *sql.DB) *DossierRepo {
	return &DossierRepo{db: db}
}

// InsertBatch inserts all dossiers in one transaction. Dossiers are never
// upserted: re-running an import against the same email always creates an
// additional dossier.
func (r *DossierRepo) InsertBatch(ctx context.Context, dossiers []domain.Dossier) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dossiers
		(id, student_id, campus_id, program_id, academic_year_id, base_price,
		 prior_balance, schedule_rhythm, comment, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range dossiers {
		d := &dossiers[i]
		_, err := stmt.ExecContext(ctx,
			d.ID, d.StudentID, nullable(d.CampusID), nullable(d.ProgramID),
			nullable(d.AcademicYearID), d.BasePrice.String(), d.PriorBalance.String(),
			nullable(d.ScheduleRhythm), nullable(d.Comment),
			d.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("insert dossier for student %s: %w", d.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *DossierRepo) ListByStudent(ctx context.Context, studentID string) ([]domain.Dossier, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, campus_id, program_id, academic_year_id,
		       base_price, prior_balance, schedule_rhythm, comment, created_at
		 FROM dossiers WHERE student_id = ? ORDER BY created_at`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var dossiers []domain.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		dossiers = append(dossiers, *d)
	}
	return dossiers, rows.Err()
}

func (r *DossierRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dossiers").Scan(&count)
	return count, err
}

func scanDossier(rows *sql.Rows) (*domain.Dossier, error) {
	var d domain.Dossier
	var campus, program, year, rhythm, comment sql.NullString
	var basePrice, priorBalance, createdAt string

	err := rows.Scan(&d.ID, &d.StudentID, &campus, &program, &year,
		&basePrice, &priorBalance, &rhythm, &comment, &createdAt)
	if err != nil {
		return nil, err
	}

	d.CampusID = campus.String
	d.ProgramID = program.String
	d.AcademicYearID = year.String
	d.ScheduleRhythm = rhythm.String
	d.Comment = comment.String
	d.BasePrice, _ = decimal.NewFromString(basePrice)
	d.PriorBalance, _ = decimal.NewFromString(priorBalance)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}
