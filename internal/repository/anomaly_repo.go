package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scolaris/billing/internal/domain"
)

type AnomalyRepo struct {
	db *sql.DB
}

func NewAnomalyRepo(db *sql.DB) *AnomalyRepo {
	return &AnomalyRepo{db: db}
}

// BulkInsert inserts all anomalies in one transaction and returns the number
// inserted. Anomalies are append-only; there is no update path.
func (r *AnomalyRepo) BulkInsert(ctx context.Context, anomalies []domain.Anomaly) (int, error) {
	if len(anomalies) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO anomalies
		(id, dossier_id, student_id, category, severity, description, details,
		 suggested_action, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range anomalies {
		a := &anomalies[i]
		var details any
		if len(a.Details) > 0 {
			raw, err := json.Marshal(a.Details)
			if err != nil {
				return inserted, fmt.Errorf("marshal details: %w", err)
			}
			details = string(raw)
		}

		_, err := stmt.ExecContext(ctx,
			a.ID, nullable(a.DossierID), nullable(a.StudentID),
			string(a.Category), string(a.Severity), a.Description, details,
			nullable(a.SuggestedAction), a.DetectedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert anomaly %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type AnomalyFilter struct {
	Category  string
	Severity  string
	StudentID string
	Page      int
	Limit     int
}

func (r *AnomalyRepo) List(ctx context.Context, f AnomalyFilter) ([]domain.Anomaly, int, error) {
	var clauses []string
	var args []any
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, f.StudentID)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anomalies"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, dossier_id, student_id, category, severity, description,
		       details, suggested_action, detected_at
		 FROM anomalies`+where+` ORDER BY detected_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var anomalies []domain.Anomaly
	for rows.Next() {
		var a domain.Anomaly
		var dossierID, studentID, details, action sql.NullString
		var category, severity, detectedAt string

		err := rows.Scan(&a.ID, &dossierID, &studentID, &category, &severity,
			&a.Description, &details, &action, &detectedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}

		a.DossierID = dossierID.String
		a.StudentID = studentID.String
		a.Category = domain.AnomalyCategory(category)
		a.Severity = domain.Severity(severity)
		a.SuggestedAction = action.String
		a.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
		if details.Valid {
			_ = json.Unmarshal([]byte(details.String), &a.Details)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, total, rows.Err()
}

// AnomalySummary holds counts by severity and category.
type AnomalySummary struct {
	TotalCount int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
}

func (r *AnomalyRepo) GetSummary(ctx context.Context) (*AnomalySummary, error) {
	summary := &AnomalySummary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT severity, category, COUNT(*) FROM anomalies GROUP BY severity, category")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity, category string
		var count int
		if err := rows.Scan(&severity, &category, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		summary.TotalCount += count
		summary.BySeverity[severity] += count
		summary.ByCategory[category] += count
	}
	return summary, rows.Err()
}
