package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolaris/billing/internal/billing"
	"github.com/scolaris/billing/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedAccount creates one student with one dossier and the given payments.
func seedAccount(t *testing.T, db *sql.DB, basePrice int64, payments []domain.Payment) (studentID, dossierID string) {
	t.Helper()
	ctx := context.Background()

	ids, err := NewStudentRepo(db).UpsertBatch(ctx, []domain.Student{{
		Email:            uuid.NewString() + "@mail.fr",
		LastName:         "Test",
		FirstName:        "Student",
		EnrollmentStatus: domain.EnrollmentActive,
	}})
	require.NoError(t, err)
	for _, id := range ids {
		studentID = id
	}

	dossierID = uuid.NewString()
	require.NoError(t, NewDossierRepo(db).InsertBatch(ctx, []domain.Dossier{{
		ID:           dossierID,
		StudentID:    studentID,
		BasePrice:    decimal.NewFromInt(basePrice),
		PriorBalance: decimal.Zero,
		CreatedAt:    time.Now().UTC(),
	}}))

	repo := NewPaymentRepo(db)
	for i := range payments {
		payments[i].ID = uuid.NewString()
		payments[i].DossierID = dossierID
		payments[i].CreatedAt = time.Now().UTC()
		require.NoError(t, repo.InsertOne(ctx, &payments[i]))
	}
	return studentID, dossierID
}

func pay(amount int64, status domain.PaymentStatus, date time.Time) domain.Payment {
	return domain.Payment{
		Amount:      decimal.NewFromInt(amount),
		Method:      "CB",
		PaymentDate: date,
		Status:      status,
	}
}

func TestAggregatesForStudent(t *testing.T) {
	db := newTestDB(t)
	ref := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	past := ref.AddDate(0, -2, 0)
	future := ref.AddDate(0, 2, 0)

	studentID, _ := seedAccount(t, db, 3000, []domain.Payment{
		pay(500, domain.PaymentValid, past),
		pay(500, domain.PaymentUnpaid, past),
		pay(1000, domain.PaymentValid, future),
	})

	agg, err := NewBillingRepo(db).AggregatesForStudent(context.Background(), studentID, ref)
	require.NoError(t, err)

	assert.True(t, agg.HasDossier)
	assert.Equal(t, "3000", agg.TotalDue.String())
	assert.Equal(t, "1500", agg.TotalPaid.String(), "valid rows only")
	assert.Equal(t, "1000", agg.DueAndPast.String(), "rows dated on or before the reference date")
	assert.Equal(t, 1, agg.LateInstallments, "unpaid rows past due")
	require.NotNil(t, agg.LastPaymentDate)
	assert.True(t, agg.LastPaymentDate.Equal(future))

	assert.Equal(t, billing.StatusLate, billing.Classify(agg))
}

func TestAggregatesForStudent_NoDossier(t *testing.T) {
	db := newTestDB(t)

	agg, err := NewBillingRepo(db).AggregatesForStudent(context.Background(), "missing", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, agg.HasDossier)
	assert.True(t, agg.TotalDue.IsZero())
	assert.Nil(t, agg.LastPaymentDate)
	assert.Equal(t, billing.StatusUnspecified, billing.Classify(agg))
}

func TestGetDashboardTotals(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	seedAccount(t, db, 3000, []domain.Payment{
		pay(500, domain.PaymentValid, now),
		pay(200, domain.PaymentUnpaid, now),
	})
	seedAccount(t, db, 2000, nil)

	totals, err := NewBillingRepo(db).GetDashboardTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Students)
	assert.Equal(t, 2, totals.Dossiers)
	assert.Equal(t, 2, totals.Payments)
	assert.InDelta(t, 5000, totals.TotalDue, 0.001)
	assert.InDelta(t, 500, totals.CollectedSum, 0.001)
	assert.InDelta(t, 200, totals.UnpaidSum, 0.001)
}

func TestStudentRepo_UpsertBatchKeepsIDStable(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudentRepo(db)
	ctx := context.Background()

	s := domain.Student{
		Email:            "a@mail.fr",
		LastName:         "Avant",
		FirstName:        "Test",
		EnrollmentStatus: domain.EnrollmentActive,
	}
	first, err := repo.UpsertBatch(ctx, []domain.Student{s})
	require.NoError(t, err)

	s.LastName = "Apres"
	second, err := repo.UpsertBatch(ctx, []domain.Student{s})
	require.NoError(t, err)

	assert.Equal(t, first["a@mail.fr"], second["a@mail.fr"])

	got, err := repo.GetByID(ctx, first["a@mail.fr"])
	require.NoError(t, err)
	assert.Equal(t, "Apres", got.LastName, "conflicting rows update in place")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStudentRepo_ListSearch(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudentRepo(db)
	ctx := context.Background()

	_, err := repo.UpsertBatch(ctx, []domain.Student{
		{Email: "jean.dupont@mail.fr", LastName: "Dupont", FirstName: "Jean", EnrollmentStatus: domain.EnrollmentActive},
		{Email: "sophie.martin@mail.fr", LastName: "Martin", FirstName: "Sophie", EnrollmentStatus: domain.EnrollmentActive},
	})
	require.NoError(t, err)

	students, total, err := repo.List(ctx, StudentFilter{Search: "dupont"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, students, 1)
	assert.Equal(t, "Dupont", students[0].LastName)

	_, total, err = repo.List(ctx, StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestImportRunRepo_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "run-1", time.Now().UTC()))

	run, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunInProgress, run.Status)
	assert.Nil(t, run.FinishedAt)

	run.Stats = domain.ImportStats{RowsTotal: 10, StudentsImported: 8}
	run.Rejections = []domain.PaymentRejection{{Email: "a@mail.fr", Slot: 2, Reason: "date illisible"}}
	require.NoError(t, repo.Finalize(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, 10, got.Stats.RowsTotal)
	require.Len(t, got.Rejections, 1)
	assert.Equal(t, "a@mail.fr", got.Rejections[0].Email)
	assert.NotNil(t, got.FinishedAt)

	_, err = repo.Get(ctx, "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportRunRepo_MarkFailed(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "run-2", time.Now().UTC()))
	require.NoError(t, repo.MarkFailed(ctx, "run-2", "parse spreadsheet: bad header"))

	got, err := repo.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, "parse spreadsheet: bad header", got.Error)
}
