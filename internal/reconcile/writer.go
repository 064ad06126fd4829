// Package reconcile commits a parsed import run to the store: students are
// upserted, dossiers created, payments bulk-inserted with graceful
// degradation, and aggregate anomalies detected on the committed data.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/domain"
)

// DefaultChunkSize is the target payment chunk size for stage three.
const DefaultChunkSize = 100

// Store interfaces kept narrow so the chunk-then-row fallback accounting can
// be exercised without a real database behind it.
type StudentStore interface {
	UpsertBatch(ctx context.Context, students []domain.Student) (map[string]string, error)
}

type DossierStore interface {
	InsertBatch(ctx context.Context, dossiers []domain.Dossier) error
}

type PaymentStore interface {
	InsertChunk(ctx context.Context, payments []domain.Payment) error
	InsertOne(ctx context.Context, p *domain.Payment) error
}

// Writer runs the three strictly ordered bulk-write stages of an import:
// students, then dossiers, then payments. Later stages depend on ids produced
// by earlier ones.
type Writer struct {
	students  StudentStore
	dossiers  DossierStore
	payments  PaymentStore
	logger    *zap.Logger
	chunkSize int
}

func NewWriter(
	students StudentStore,
	dossiers DossierStore,
	payments PaymentStore,
	chunkSize int,
	logger *zap.Logger,
) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		students:  students,
		dossiers:  dossiers,
		payments:  payments,
		logger:    logger,
		chunkSize: chunkSize,
	}
}

// WriteResult accounts for everything the writer committed or failed to.
type WriteResult struct {
	StudentIDs        map[string]string // email -> committed student id
	DossierIDs        map[string]string // email -> created dossier id
	StudentsImported  int
	DossiersCreated   int
	PaymentsAttempted int
	PaymentsImported  int
	Failures          []domain.InsertFailure
}

// WriteAll commits the deduplicated prospective students. Stage one and two
// are all-or-nothing bulk operations; stage three degrades gracefully, chunk
// by chunk then row by row, so a systemic issue with one payment row never
// discards the other ninety-nine.
func (w *Writer) WriteAll(ctx context.Context, students []*domain.ProspectiveStudent) (*WriteResult, error) {
	res := &WriteResult{
		StudentIDs: make(map[string]string, len(students)),
		DossierIDs: make(map[string]string, len(students)),
	}

	// Stage 1: upsert students keyed by email.
	batch := make([]domain.Student, len(students))
	for i, p := range students {
		batch[i] = p.Student()
	}
	ids, err := w.students.UpsertBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("upsert students: %w", err)
	}
	res.StudentIDs = ids
	res.StudentsImported = len(ids)

	// Stage 2: one fresh dossier per committed student.
	now := time.Now().UTC()
	var dossiers []domain.Dossier
	for _, p := range students {
		studentID, ok := ids[p.Email]
		if !ok {
			continue
		}
		d := domain.Dossier{
			ID:             uuid.NewString(),
			StudentID:      studentID,
			CampusID:       p.CampusID,
			ProgramID:      p.ProgramID,
			AcademicYearID: p.AcademicYearID,
			BasePrice:      p.BasePrice,
			PriorBalance:   p.PriorBalance,
			ScheduleRhythm: p.ScheduleRhythm,
			Comment:        p.Comment,
			CreatedAt:      now,
		}
		dossiers = append(dossiers, d)
		res.DossierIDs[p.Email] = d.ID
	}
	if err := w.dossiers.InsertBatch(ctx, dossiers); err != nil {
		return nil, fmt.Errorf("insert dossiers: %w", err)
	}
	res.DossiersCreated = len(dossiers)

	// Stage 3: payments, chunked with per-row fallback.
	var all []domain.Payment
	for _, p := range students {
		dossierID, ok := res.DossierIDs[p.Email]
		if !ok {
			// Should not happen under correct sequencing; checked anyway so
			// payments are dropped and logged rather than silently merged
			// into another dossier.
			w.logger.Error("no dossier for student, dropping its payments",
				zap.String("email", p.Email),
				zap.Int("payments", len(p.Payments)))
			continue
		}
		for _, pp := range p.Payments {
			all = append(all, domain.Payment{
				ID:          uuid.NewString(),
				DossierID:   dossierID,
				Amount:      pp.Amount,
				Method:      pp.Method,
				PaymentDate: pp.Date,
				PieceNumber: pp.PieceNumber,
				Status:      pp.Status,
				RawDate:     pp.RawDate,
				CreatedAt:   now,
			})
		}
	}
	res.PaymentsAttempted = len(all)

	for chunkIdx := 0; chunkIdx*w.chunkSize < len(all); chunkIdx++ {
		start := chunkIdx * w.chunkSize
		end := start + w.chunkSize
		if end > len(all) {
			end = len(all)
		}
		chunk := all[start:end]

		if err := w.payments.InsertChunk(ctx, chunk); err == nil {
			res.PaymentsImported += len(chunk)
			continue
		} else {
			w.logger.Warn("payment chunk insert failed, retrying row by row",
				zap.Int("chunk", chunkIdx),
				zap.Int("rows", len(chunk)),
				zap.Error(err))
		}

		for rowIdx := range chunk {
			p := &chunk[rowIdx]
			if err := w.payments.InsertOne(ctx, p); err != nil {
				res.Failures = append(res.Failures, domain.InsertFailure{
					Chunk:     chunkIdx,
					Row:       rowIdx,
					DossierID: p.DossierID,
					Amount:    p.Amount.String(),
					Date:      p.PaymentDate.Format("2006-01-02"),
					Method:    p.Method,
					Status:    string(p.Status),
					Error:     err.Error(),
				})
				continue
			}
			res.PaymentsImported++
		}
	}

	w.logger.Info("bulk write finished",
		zap.Int("students", res.StudentsImported),
		zap.Int("dossiers", res.DossiersCreated),
		zap.Int("payments_attempted", res.PaymentsAttempted),
		zap.Int("payments_imported", res.PaymentsImported),
		zap.Int("failures", len(res.Failures)))

	return res, nil
}
