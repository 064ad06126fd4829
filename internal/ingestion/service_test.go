package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/reconcile"
	"github.com/scolaris/billing/internal/repository"
)

type serviceFixture struct {
	svc       *Service
	runs      *repository.ImportRunRepo
	students  *repository.StudentRepo
	dossiers  *repository.DossierRepo
	payments  *repository.PaymentRepo
	anomalies *repository.AnomalyRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	students := repository.NewStudentRepo(db)
	dossiers := repository.NewDossierRepo(db)
	payments := repository.NewPaymentRepo(db)
	writer := reconcile.NewWriter(students, dossiers, payments, reconcile.DefaultChunkSize, logger)
	detector := reconcile.NewDetector(payments, logger)

	f := &serviceFixture{
		runs:      repository.NewImportRunRepo(db),
		students:  students,
		dossiers:  dossiers,
		payments:  payments,
		anomalies: repository.NewAnomalyRepo(db),
	}
	f.svc = NewService(f.runs, f.anomalies, repository.NewRefDimensionRepo(db), writer, detector, logger)
	return f
}

const sampleExport = sampleHeader + "\n" +
	"Dupont;Jean;jean.dupont@mail.fr;Paris;Informatique;1ère année;4500;500;CB;15/03/2024;1000;Virement;15/04/2024\n" +
	"Martin;Sophie;sophie.martin@mail.fr;Lyon;Droit;1ère année;3800;300;CB;10/03/2024;800;CB;IMPAYE\n" +
	"Durand;Paul;mauvais-email;Paris;Informatique;1ère année;4500;500;CB;15/03/2024;;;\n" +
	"Dupont;Jeanne;jean.dupont@mail.fr;Lille;Informatique;2ème année;4800;700;Chèque;20/03/2024;;;\n"

func TestServiceRun_FullPipeline(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleExport})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.RunID)

	// four rows, one rejected for its email, one duplicate collapsed
	assert.Equal(t, 4, resp.Stats.RowsTotal)
	assert.Equal(t, 3, resp.Stats.StudentsFound)
	assert.Equal(t, 2, resp.Stats.StudentsUnique)
	assert.Equal(t, 2, resp.Stats.StudentsImported)

	// duplicate's last row has one payment; sophie has two, one kept unpaid
	assert.Equal(t, 3, resp.Stats.PaymentsFound)
	assert.Equal(t, 3, resp.Stats.PaymentsImported)
	assert.Equal(t, 1, resp.Stats.PaymentsRejected)

	n, err := f.students.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.dossiers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.payments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// the run report is persisted in its completed terminal state
	run, err := f.runs.Get(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, resp.Stats, run.Stats)
	require.Len(t, run.Rejections, 1)
	assert.Equal(t, "sophie.martin@mail.fr", run.Rejections[0].Email)

	// anomalies landed: at least the critical email rejection
	summary, err := f.anomalies.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.AnomaliesFound, summary.TotalCount)
	assert.GreaterOrEqual(t, summary.ByCategory[string(domain.AnomalyInvalidEmail)], 1)
}

func TestServiceRun_RerunIsIdempotentOnStudents(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleExport})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleExport})
	require.NoError(t, err)

	n, err := f.students.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "re-importing the same file never duplicates students")

	n, err = f.dossiers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "each run opens a fresh dossier")
}

func TestServiceRun_EmptyTextMarksRunFailed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: "   ", RunID: "run-empty"})
	require.Error(t, err)

	run, getErr := f.runs.Get(ctx, "run-empty")
	require.NoError(t, getErr)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.NotNil(t, run.FinishedAt)
}

func TestServiceRun_HeaderOnlyMarksRunFailed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleHeader + "\n", RunID: "run-header"})
	require.Error(t, err)

	run, getErr := f.runs.Get(ctx, "run-header")
	require.NoError(t, getErr)
	assert.Equal(t, domain.RunFailed, run.Status)
}

func TestServiceRun_DuplicateRunIDRejected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleExport, RunID: "run-1"})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, &ImportRequest{RawSpreadsheetText: sampleExport, RunID: "run-1"})
	assert.Error(t, err, "run ids are unique")
}
