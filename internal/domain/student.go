package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "inscrit"
	EnrollmentPending   EnrollmentStatus = "en_attente"
	EnrollmentWithdrawn EnrollmentStatus = "desinscrit"
)

type Student struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	LastName         string           `json:"last_name"`
	FirstName        string           `json:"first_name"`
	RegistrationID   string           `json:"registration_id,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Address          string           `json:"address,omitempty"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ProspectiveStudent is the in-memory form of one imported student before any
// write happens: identity fields plus the dossier attributes and payments
// parsed from its spreadsheet row. One per unique email within a run; a later
// row for the same email replaces the whole record, payments included.
type ProspectiveStudent struct {
	Email            string
	LastName         string
	FirstName        string
	RegistrationID   string
	Phone            string
	Address          string
	EnrollmentStatus EnrollmentStatus

	CampusName       string
	ProgramName      string
	AcademicYearName string

	// Resolved dimension ids, filled in by the reference-data resolver
	// before the bulk writer runs. Empty means no dimension.
	CampusID       string
	ProgramID      string
	AcademicYearID string

	BasePrice      decimal.Decimal
	PriorBalance   decimal.Decimal
	ScheduleRhythm string
	Comment        string

	Payments   []ProspectivePayment
	Anomalies  []Anomaly
	Rejections []PaymentRejection
}

func (p *ProspectiveStudent) Student() Student {
	return Student{
		Email:            p.Email,
		LastName:         p.LastName,
		FirstName:        p.FirstName,
		RegistrationID:   p.RegistrationID,
		Phone:            p.Phone,
		Address:          p.Address,
		EnrollmentStatus: p.EnrollmentStatus,
	}
}

func (p *ProspectiveStudent) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
