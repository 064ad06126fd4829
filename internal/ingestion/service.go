package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/reconcile"
	"github.com/scolaris/billing/internal/refdata"
	"github.com/scolaris/billing/internal/repository"
)

// detailSampleCap bounds the per-rejection and per-failure detail kept in the
// persisted run report. Counters stay exact; only the detail is sampled.
const detailSampleCap = 50

// ImportRequest is the body of the bulk-import RPC operation.
type ImportRequest struct {
	RawSpreadsheetText  string `json:"raw_spreadsheet_text"`
	RunID               string `json:"run_id,omitempty"`
	UseAnonymizedEmails bool   `json:"use_anonymized_emails"`
}

// ImportResponse is the success summary returned to the caller. Partial
// success is communicated through the stats, never through an error.
type ImportResponse struct {
	Success          bool               `json:"success"`
	RunID            string             `json:"run_id"`
	Stats            domain.ImportStats `json:"stats"`
	StudentsImported int                `json:"students_imported"`
	PaymentsImported int                `json:"payments_imported"`
	AnomaliesFound   int                `json:"anomalies_found"`
}

// Service executes one import run to completion: parse, dedup, resolve
// reference data, bulk write, detect anomalies, persist the report.
type Service struct {
	runs      *repository.ImportRunRepo
	anomalies *repository.AnomalyRepo
	refRepo   *repository.RefDimensionRepo
	writer    *reconcile.Writer
	detector  *reconcile.Detector
	logger    *zap.Logger
}

func NewService(
	runs *repository.ImportRunRepo,
	anomalies *repository.AnomalyRepo,
	refRepo *repository.RefDimensionRepo,
	writer *reconcile.Writer,
	detector *reconcile.Detector,
	logger *zap.Logger,
) *Service {
	return &Service{
		runs:      runs,
		anomalies: anomalies,
		refRepo:   refRepo,
		writer:    writer,
		detector:  detector,
		logger:    logger,
	}
}

// Run executes the whole pipeline for one request. Any error returned here is
// run-fatal: the run record has already been flipped to its failed terminal
// state with the error attached, never left in progress.
func (s *Service) Run(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := s.runs.Create(ctx, runID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("register run: %w", err)
	}

	resp, err := s.execute(ctx, runID, req)
	if err != nil {
		if failErr := s.runs.MarkFailed(ctx, runID, err.Error()); failErr != nil {
			s.logger.Error("could not mark run as failed",
				zap.String("run_id", runID), zap.Error(failErr))
		}
		return nil, err
	}
	return resp, nil
}

func (s *Service) execute(ctx context.Context, runID string, req *ImportRequest) (*ImportResponse, error) {
	now := time.Now().UTC()

	outcome, err := ParseSpreadsheet(req.RawSpreadsheetText, now, req.UseAnonymizedEmails)
	if err != nil {
		return nil, fmt.Errorf("parse spreadsheet: %w", err)
	}
	if len(outcome.Students) == 0 && outcome.RowsTotal == 0 {
		return nil, errors.New("spreadsheet contains no data rows")
	}

	// Each run owns its own resolver and cache; nothing is shared across
	// concurrent runs.
	resolver := refdata.NewResolver(s.refRepo, s.logger)
	if err := resolver.Warm(ctx); err != nil {
		return nil, fmt.Errorf("warm reference caches: %w", err)
	}
	s.resolveDimensions(ctx, resolver, outcome.Students)

	writeRes, err := s.writer.WriteAll(ctx, outcome.Students)
	if err != nil {
		return nil, fmt.Errorf("bulk write: %w", err)
	}

	aggAnoms, err := s.detector.Inspect(ctx, outcome.Students, writeRes)
	if err != nil {
		// Detection reads committed data; losing it degrades the report but
		// does not undo the writes, so the run proceeds.
		s.logger.Warn("aggregate anomaly detection failed",
			zap.String("run_id", runID), zap.Error(err))
	}

	allAnoms := s.collectAnomalies(outcome, writeRes, aggAnoms)
	if _, err := s.anomalies.BulkInsert(ctx, allAnoms); err != nil {
		s.logger.Warn("anomaly insert failed",
			zap.String("run_id", runID), zap.Error(err))
	}

	run := s.buildReport(runID, outcome, writeRes, len(allAnoms))
	if err := s.runs.Finalize(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run report: %w", err)
	}

	s.logger.Info("import run completed",
		zap.String("run_id", runID),
		zap.Int("rows", run.Stats.RowsTotal),
		zap.Int("students_imported", run.Stats.StudentsImported),
		zap.Int("payments_imported", run.Stats.PaymentsImported),
		zap.Int("payments_rejected", run.Stats.PaymentsRejected),
		zap.Int("anomalies", run.Stats.AnomaliesFound))

	return &ImportResponse{
		Success:          true,
		RunID:            runID,
		Stats:            run.Stats,
		StudentsImported: run.Stats.StudentsImported,
		PaymentsImported: run.Stats.PaymentsImported,
		AnomaliesFound:   run.Stats.AnomaliesFound,
	}, nil
}

// resolveDimensions resolves the distinct campus, program and academic-year
// names across all parsed rows, in that order, then stamps the resulting ids
// onto each prospective student. Names sharing a normalized key are
// deduplicated before issuing, so no two get-or-create calls can race on the
// same logical value.
func (s *Service) resolveDimensions(ctx context.Context, resolver *refdata.Resolver, students []*domain.ProspectiveStudent) {
	for _, p := range students {
		p.CampusID = resolver.GetOrCreate(ctx, domain.DimensionCampus, p.CampusName)
	}
	for _, p := range students {
		p.ProgramID = resolver.GetOrCreate(ctx, domain.DimensionProgram, p.ProgramName)
	}
	for _, p := range students {
		p.AcademicYearID = resolver.GetOrCreate(ctx, domain.DimensionAcademicYear, p.AcademicYearName)
	}
}

// collectAnomalies merges row-level findings (stamped with committed ids
// where known) with the aggregate-level ones, assigning ids for insertion.
func (s *Service) collectAnomalies(outcome *ParseOutcome, writeRes *reconcile.WriteResult, aggAnoms []domain.Anomaly) []domain.Anomaly {
	var all []domain.Anomaly
	all = append(all, outcome.RowAnomalies...)
	for _, p := range outcome.Students {
		studentID := writeRes.StudentIDs[p.Email]
		dossierID := writeRes.DossierIDs[p.Email]
		for _, a := range p.Anomalies {
			a.StudentID = studentID
			a.DossierID = dossierID
			all = append(all, a)
		}
	}
	all = append(all, aggAnoms...)

	for i := range all {
		all[i].ID = uuid.NewString()
	}
	return all
}

func (s *Service) buildReport(runID string, outcome *ParseOutcome, writeRes *reconcile.WriteResult, anomaliesFound int) *domain.ImportRun {
	var rejections []domain.PaymentRejection
	for _, p := range outcome.Students {
		rejections = append(rejections, p.Rejections...)
	}

	stats := domain.ImportStats{
		RowsTotal:        outcome.RowsTotal,
		RowsSkipped:      outcome.RowsSkipped,
		StudentsFound:    outcome.StudentsFound,
		StudentsUnique:   len(outcome.Students),
		StudentsImported: writeRes.StudentsImported,
		PaymentsFound:    outcome.PaymentsFound(),
		PaymentsImported: writeRes.PaymentsImported,
		PaymentsRejected: len(rejections) + len(writeRes.Failures),
		AnomaliesFound:   anomaliesFound,
	}
	stats.StudentImportRate = rate(stats.StudentsImported, stats.StudentsUnique)
	stats.PaymentImportRate = rate(stats.PaymentsImported, stats.PaymentsFound)
	stats.InsertSuccessRate = rate(writeRes.PaymentsImported, writeRes.PaymentsAttempted)

	return &domain.ImportRun{
		ID:             runID,
		Status:         domain.RunCompleted,
		Stats:          stats,
		Rejections:     capSample(rejections, detailSampleCap),
		InsertFailures: capSample(writeRes.Failures, detailSampleCap),
	}
}

func rate(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(done)/float64(total)*10000) / 100
}

func capSample[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
