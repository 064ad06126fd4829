package domain

type DimensionKind string

const (
	DimensionCampus       DimensionKind = "campus"
	DimensionProgram      DimensionKind = "filiere"
	DimensionAcademicYear DimensionKind = "annee"
)

// ReferenceDimension is a lookup row (Campus, Program or AcademicYear),
// resolved or lazily created during import. Identity compares on the
// diacritic/case-insensitive normalized name, never on the display label.
type ReferenceDimension struct {
	ID   string        `json:"id"`
	Kind DimensionKind `json:"kind"`
	Name string        `json:"name"`
	// OrderingHint is only meaningful for academic years and only used for
	// display ordering elsewhere.
	OrderingHint int `json:"ordering_hint,omitempty"`
}
