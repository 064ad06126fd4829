package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dossier is a student's enrollment record for one academic period. Every
// import run creates a fresh dossier per imported student; dossiers are never
// merged with pre-existing ones.
type Dossier struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	CampusID       string          `json:"campus_id,omitempty"`
	ProgramID      string          `json:"program_id,omitempty"`
	AcademicYearID string          `json:"academic_year_id,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	PriorBalance   decimal.Decimal `json:"prior_balance"`
	ScheduleRhythm string          `json:"schedule_rhythm,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
