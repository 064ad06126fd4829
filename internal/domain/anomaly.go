package domain

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityAlert    Severity = "alert"
	SeverityCritical Severity = "critical"
)

type AnomalyCategory string

const (
	AnomalyInvalidEmail      AnomalyCategory = "email_invalide"
	AnomalyIncompleteName    AnomalyCategory = "identite_incomplete"
	AnomalyInvalidTariff     AnomalyCategory = "tarif_invalide"
	AnomalyMissingMethod     AnomalyCategory = "mode_reglement_manquant"
	AnomalySuspectAmount     AnomalyCategory = "montant_suspect"
	AnomalyInconsistentTotal AnomalyCategory = "total_incoherent"
	AnomalyCreditor          AnomalyCategory = "solde_crediteur"
	AnomalyLargeBalance      AnomalyCategory = "solde_restant_eleve"
)

// Anomaly is a structured, persisted data-quality or business-rule finding.
// Append-only: nothing in the import core ever mutates one after insert.
type Anomaly struct {
	ID              string          `json:"id"`
	DossierID       string          `json:"dossier_id,omitempty"`
	StudentID       string          `json:"student_id,omitempty"`
	Category        AnomalyCategory `json:"category"`
	Severity        Severity        `json:"severity"`
	Description     string          `json:"description"`
	Details         map[string]any  `json:"details,omitempty"`
	SuggestedAction string          `json:"suggested_action,omitempty"`
	DetectedAt      time.Time       `json:"detected_at"`
}
