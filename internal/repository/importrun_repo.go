package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scolaris/billing/internal/domain"
)

type ImportRunRepo struct {
	db *sql.DB
}

func NewImportRunRepo(db *sql.DB) *ImportRunRepo {
	return &ImportRunRepo{db: db}
}

// Create registers a run in its in-progress state before any pipeline stage
// touches the store, so a crash can never leave an unknown run behind.
func (r *ImportRunRepo) Create(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, status, started_at) VALUES (?,?,?)`,
		id, string(domain.RunInProgress), startedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Finalize writes the full report and flips the run to its completed state.
func (r *ImportRunRepo) Finalize(ctx context.Context, run *domain.ImportRun) error {
	rejections, err := json.Marshal(run.Rejections)
	if err != nil {
		return fmt.Errorf("marshal rejections: %w", err)
	}
	failures, err := json.Marshal(run.InsertFailures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	finishedAt := time.Now().UTC()
	s := run.Stats
	_, err = r.db.ExecContext(ctx,
		`UPDATE import_runs SET
			status = ?, rows_total = ?, rows_skipped = ?, students_found = ?,
			students_unique = ?, students_imported = ?, payments_found = ?,
			payments_imported = ?, payments_rejected = ?, anomalies_found = ?,
			student_import_rate = ?, payment_import_rate = ?, insert_success_rate = ?,
			rejections = ?, insert_failures = ?, finished_at = ?
		 WHERE id = ?`,
		string(domain.RunCompleted), s.RowsTotal, s.RowsSkipped, s.StudentsFound,
		s.StudentsUnique, s.StudentsImported, s.PaymentsFound,
		s.PaymentsImported, s.PaymentsRejected, s.AnomaliesFound,
		s.StudentImportRate, s.PaymentImportRate, s.InsertSuccessRate,
		string(rejections), string(failures), finishedAt.Format(time.RFC3339),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// MarkFailed flips the run to its terminal failed state with the error text
// attached. Used exactly once, at the top level, for run-fatal failures.
func (r *ImportRunRepo) MarkFailed(ctx context.Context, id, errText string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(domain.RunFailed), errText, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *ImportRunRepo) Get(ctx context.Context, id string) (*domain.ImportRun, error) {
	row := r.db.QueryRowContext(ctx, selectRunSQL+" WHERE id = ?", id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return run, err
}

func (r *ImportRunRepo) List(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectRunSQL+" ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var runs []domain.ImportRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const selectRunSQL = `SELECT id, status, error, rows_total, rows_skipped,
	students_found, students_unique, students_imported, payments_found,
	payments_imported, payments_rejected, anomalies_found,
	student_import_rate, payment_import_rate, insert_success_rate,
	rejections, insert_failures, started_at, finished_at
	FROM import_runs`

func scanRun(scan func(...any) error) (*domain.ImportRun, error) {
	var run domain.ImportRun
	var status, startedAt string
	var errText, rejections, failures, finishedAt sql.NullString
	s := &run.Stats

	err := scan(&run.ID, &status, &errText, &s.RowsTotal, &s.RowsSkipped,
		&s.StudentsFound, &s.StudentsUnique, &s.StudentsImported,
		&s.PaymentsFound, &s.PaymentsImported, &s.PaymentsRejected,
		&s.AnomaliesFound, &s.StudentImportRate, &s.PaymentImportRate,
		&s.InsertSuccessRate, &rejections, &failures, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.Error = errText.String
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		run.FinishedAt = &t
	}
	if rejections.Valid {
		_ = json.Unmarshal([]byte(rejections.String), &run.Rejections)
	}
	if failures.Valid {
		_ = json.Unmarshal([]byte(failures.String), &run.InsertFailures)
	}
	return &run, nil
}
