package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/ingestion"
	"github.com/scolaris/billing/internal/repository"
)

// Deps carries everything the router needs.
type Deps struct {
	Students  *repository.StudentRepo
	Dossiers  *repository.DossierRepo
	Payments  *repository.PaymentRepo
	Anomalies *repository.AnomalyRepo
	Runs      *repository.ImportRunRepo
	Billing   *repository.BillingRepo
	ImportSvc *ingestion.Service
	Logger    *zap.Logger
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(deps Deps) http.Handler {
	h := &Handlers{
		students:  deps.Students,
		dossiers:  deps.Dossiers,
		payments:  deps.Payments,
		anomalies: deps.Anomalies,
		runs:      deps.Runs,
		billing:   deps.Billing,
		importSvc: deps.ImportSvc,
		logger:    deps.Logger,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Bulk import.
		r.Post("/imports", h.ImportSpreadsheet)
		r.Get("/imports", h.ListImportRuns)
		r.Get("/imports/{id}", h.GetImportRun)

		// Students.
		r.Get("/students", h.ListStudents)
		r.Get("/students/{id}/billing", h.GetStudentBilling)

		// Anomalies.
		r.Get("/anomalies", h.ListAnomalies)
		r.Get("/anomalies/summary", h.GetAnomalySummary)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
