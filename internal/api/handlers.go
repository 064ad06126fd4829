package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/billing"
	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/ingestion"
	"github.com/scolaris/billing/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	students  *repository.StudentRepo
	dossiers  *repository.DossierRepo
	payments  *repository.PaymentRepo
	anomalies *repository.AnomalyRepo
	runs      *repository.ImportRunRepo
	billing   *repository.BillingRepo
	importSvc *ingestion.Service
	logger    *zap.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- ImportSpreadsheet ---

func (h *Handlers) ImportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	var req ingestion.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.RawSpreadsheetText) == "" {
		h.writeError(w, http.StatusBadRequest, "raw_spreadsheet_text is required")
		return
	}

	resp, err := h.importSvc.Run(r.Context(), &req)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// --- ListImportRuns / GetImportRun ---

func (h *Handlers) ListImportRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 50))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handlers) GetImportRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err == repository.ErrNotFound {
		h.writeError(w, http.StatusNotFound, "import run not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// --- ListStudents ---

type studentEntry struct {
	domain.Student
	PaymentStatus billing.Status `json:"payment_status"`
}

func (h *Handlers) ListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.StudentFilter{
		Search: q.Get("search"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}

	students, total, err := h.students.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now().UTC()
	entries := make([]studentEntry, 0, len(students))
	for _, s := range students {
		agg, err := h.billing.AggregatesForStudent(r.Context(), s.ID, now)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, studentEntry{Student: s, PaymentStatus: billing.Classify(agg)})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"students": entries,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

// --- GetStudentBilling ---

func (h *Handlers) GetStudentBilling(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	student, err := h.students.GetByID(r.Context(), id)
	if err == repository.ErrNotFound {
		h.writeError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dossiers, err := h.dossiers.ListByStudent(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type dossierEntry struct {
		domain.Dossier
		Payments []domain.Payment `json:"payments"`
	}
	entries := make([]dossierEntry, 0, len(dossiers))
	for _, d := range dossiers {
		payments, err := h.payments.ListByDossier(r.Context(), d.ID)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, dossierEntry{Dossier: d, Payments: payments})
	}

	agg, err := h.billing.AggregatesForStudent(r.Context(), id, time.Now().UTC())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"student":        student,
		"dossiers":       entries,
		"payment_status": billing.Classify(agg),
		"total_due":      agg.TotalDue,
		"total_paid":     agg.TotalPaid,
	})
}

// --- ListAnomalies / GetAnomalySummary ---

func (h *Handlers) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AnomalyFilter{
		Category:  q.Get("category"),
		Severity:  q.Get("severity"),
		StudentID: q.Get("student_id"),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	anomalies, total, err := h.anomalies.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomalies,
		"total":     total,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

func (h *Handlers) GetAnomalySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.anomalies.GetSummary(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	totals, err := h.billing.GetDashboardTotals(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	anomalySummary, err := h.anomalies.GetSummary(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs, err := h.runs.List(r.Context(), 5)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"totals":      totals,
		"anomalies":   anomalySummary,
		"recent_runs": runs,
	})
}
