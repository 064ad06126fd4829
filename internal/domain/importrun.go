package domain

import "time"

type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// ImportStats are the aggregate counters of one import run.
type ImportStats struct {
	RowsTotal        int `json:"rows_total"`
	RowsSkipped      int `json:"rows_skipped"`
	StudentsFound    int `json:"students_found"`
	StudentsUnique   int `json:"students_unique"`
	StudentsImported int `json:"students_imported"`
	PaymentsFound    int `json:"payments_found"`
	PaymentsImported int `json:"payments_imported"`
	PaymentsRejected int `json:"payments_rejected"`
	AnomaliesFound   int `json:"anomalies_found"`

	// Closed-form percentage summary, rounded to two decimals.
	StudentImportRate float64 `json:"student_import_rate"`
	PaymentImportRate float64 `json:"payment_import_rate"`
	InsertSuccessRate float64 `json:"insert_success_rate"`
}

// PaymentRejection describes one payment slot kept out of (or flagged during)
// the import, with enough raw context to chase the source row.
type PaymentRejection struct {
	StudentName string `json:"student_name"`
	Email       string `json:"email"`
	Slot        int    `json:"slot"`
	RawAmount   string `json:"raw_amount"`
	RawDate     string `json:"raw_date"`
	Reason      string `json:"reason"`
}

// InsertFailure describes one payment row the store still rejected after the
// row-by-row fallback.
type InsertFailure struct {
	Chunk     int    `json:"chunk"`
	Row       int    `json:"row"`
	DossierID string `json:"dossier_id"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// ImportRun is the single summary record produced once per import execution.
type ImportRun struct {
	ID             string             `json:"id"`
	Status         RunStatus          `json:"status"`
	Error          string             `json:"error,omitempty"`
	Stats          ImportStats        `json:"stats"`
	Rejections     []PaymentRejection `json:"rejections,omitempty"`
	InsertFailures []InsertFailure    `json:"insert_failures,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
}
