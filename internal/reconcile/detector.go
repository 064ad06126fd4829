package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/repository"
)

// aggregateTolerance absorbs rounding noise when comparing committed payment
// totals against the tariff: one currency unit.
var aggregateTolerance = decimal.NewFromInt(1)

// Detector inspects committed dossiers after the bulk writes and emits
// aggregate-level anomalies. It never mutates committed financial rows.
type Detector struct {
	payments *repository.PaymentRepo
	logger   *zap.Logger
}

func NewDetector(payments *repository.PaymentRepo, logger *zap.Logger) *Detector {
	return &Detector{payments: payments, logger: logger}
}

// Inspect compares each committed dossier's payment total against its tariff.
// Paid beyond the tariff (past a small tolerance) flags a creditor; more than
// half the tariff still outstanding flags a large balance.
func (d *Detector) Inspect(ctx context.Context, students []*domain.ProspectiveStudent, result *WriteResult) ([]domain.Anomaly, error) {
	dossierIDs := make([]string, 0, len(result.DossierIDs))
	for _, id := range result.DossierIDs {
		dossierIDs = append(dossierIDs, id)
	}
	sums, err := d.payments.SumsByDossier(ctx, dossierIDs)
	if err != nil {
		return nil, fmt.Errorf("sum committed payments: %w", err)
	}

	now := time.Now().UTC()
	var anomalies []domain.Anomaly
	for _, p := range students {
		dossierID, ok := result.DossierIDs[p.Email]
		if !ok || p.BasePrice.Sign() <= 0 {
			continue
		}
		studentID := result.StudentIDs[p.Email]
		paid := sums[dossierID]
		outstanding := p.BasePrice.Sub(paid)

		switch {
		case outstanding.Neg().GreaterThan(aggregateTolerance):
			anomalies = append(anomalies, domain.Anomaly{
				DossierID: dossierID,
				StudentID: studentID,
				Category:  domain.AnomalyCreditor,
				Severity:  domain.SeverityAlert,
				Description: fmt.Sprintf("%s a réglé %s pour un tarif de %s : solde créditeur",
					p.FullName(), paid.StringFixed(2), p.BasePrice.StringFixed(2)),
				Details: map[string]any{
					"email": p.Email,
					"paye":  paid.String(),
					"tarif": p.BasePrice.String(),
					"solde": outstanding.String(),
				},
				SuggestedAction: "vérifier les montants saisis ou prévoir un remboursement",
				DetectedAt:      now,
			})
		case outstanding.GreaterThan(p.BasePrice.Div(decimal.NewFromInt(2))):
			anomalies = append(anomalies, domain.Anomaly{
				DossierID: dossierID,
				StudentID: studentID,
				Category:  domain.AnomalyLargeBalance,
				Severity:  domain.SeverityInfo,
				Description: fmt.Sprintf("%s doit encore %s sur un tarif de %s",
					p.FullName(), outstanding.StringFixed(2), p.BasePrice.StringFixed(2)),
				Details: map[string]any{
					"email": p.Email,
					"paye":  paid.String(),
					"tarif": p.BasePrice.String(),
					"solde": outstanding.String(),
				},
				DetectedAt: now,
			})
		}
	}

	d.logger.Info("aggregate inspection finished",
		zap.Int("dossiers", len(dossierIDs)),
		zap.Int("anomalies", len(anomalies)))

	return anomalies, nil
}
