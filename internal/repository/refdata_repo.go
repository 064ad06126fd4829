package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scolaris/billing/internal/domain"
)

type RefDimensionRepo struct {
	db *sql.DB
}

func NewRefDimensionRepo(db *sql.DB) *RefDimensionRepo {
	return &RefDimensionRepo{db: db}
}

func (r *RefDimensionRepo) ListByKind(ctx context.Context, kind domain.DimensionKind) ([]domain.ReferenceDimension, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, name, ordering_hint FROM reference_dimensions
		 WHERE kind = ? ORDER BY ordering_hint, name`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var dims []domain.ReferenceDimension
	for rows.Next() {
		var d domain.ReferenceDimension
		var kind string
		if err := rows.Scan(&d.ID, &kind, &d.Name, &d.OrderingHint); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		d.Kind = domain.DimensionKind(kind)
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

func (r *RefDimensionRepo) Insert(ctx context.Context, d *domain.ReferenceDimension) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reference_dimensions (id, kind, name, ordering_hint)
		 VALUES (?,?,?,?)`,
		d.ID, string(d.Kind), d.Name, d.OrderingHint)
	if err != nil {
		return fmt.Errorf("insert dimension %s/%s: %w", d.Kind, d.Name, err)
	}
	return nil
}
