package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scolaris/billing/internal/domain"
)

type StudentRepo struct {
	db *sql.DB
}

func NewStudentRepo(db *sql.DB) *StudentRepo {
	return &StudentRepo{db: db}
}

// UpsertBatch upserts all students in one transaction, conflict target email,
// update-in-place semantics. It returns the committed id for every email,
// including pre-existing ones.
func (r *StudentRepo) UpsertBatch(ctx context.Context, students []domain.Student) (map[string]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO students
		(id, email, last_name, first_name, registration_id, phone, address,
		 enrollment_status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(email) DO UPDATE SET
			last_name = excluded.last_name,
			first_name = excluded.first_name,
			registration_id = excluded.registration_id,
			phone = excluded.phone,
			address = excluded.address,
			enrollment_status = excluded.enrollment_status,
			updated_at = excluded.updated_at
		RETURNING id`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	ids := make(map[string]string, len(students))
	for i := range students {
		s := &students[i]
		var id string
		err := stmt.QueryRowContext(ctx,
			uuid.NewString(), s.Email, s.LastName, s.FirstName,
			nullable(s.RegistrationID), nullable(s.Phone), nullable(s.Address),
			string(s.EnrollmentStatus), now.Format(time.RFC3339), now.Format(time.RFC3339),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert student %s: %w", s.Email, err)
		}
		ids[s.Email] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (r *StudentRepo) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, last_name, first_name, registration_id, phone,
		       address, enrollment_status, created_at, updated_at
		 FROM students WHERE id = ?`, id)
	s, err := scanStudent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *StudentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count)
	return count, err
}

type StudentFilter struct {
	Search string // matches last name, first name or email
	Page   int
	Limit  int
}

func (r *StudentRepo) List(ctx context.Context, f StudentFilter) ([]domain.Student, int, error) {
	var clauses []string
	var args []any
	if f.Search != "" {
		like := "%" + f.Search + "%"
		clauses = append(clauses, "(last_name LIKE ? OR first_name LIKE ? OR email LIKE ?)")
		args = append(args, like, like, like)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students"+where, args...).Scan(&total); err != nil {
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
		`SELECT id, email, last_name, first_name, registration_id, phone,
		       address, enrollment_status, created_at, updated_at
		 FROM students`+where+` ORDER BY last_name, first_name LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		s, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		students = append(students, *s)
	}
	return students, total, rows.Err()
}

// --- helpers ---

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanStudent(scan func(...any) error) (*domain.Student, error) {
	var s domain.Student
	var registration, phone, address sql.NullString
	var status, createdAt, updatedAt string

	err := scan(&s.ID, &s.Email, &s.LastName, &s.FirstName,
		&registration, &phone, &address, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.RegistrationID = registration.String
	s.Phone = phone.String
	s.Address = address.String
	s.EnrollmentStatus = domain.EnrollmentStatus(status)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}
