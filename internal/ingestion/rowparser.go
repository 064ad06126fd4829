package ingestion

import (
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/scolaris/billing/internal/domain"
)

// maxInstallmentSlot is the highest numbered installment column looked up per
// row. Slot 1 is the deposit and has its own dedicated columns.
const maxInstallmentSlot = 13

// Recognized canonical header keys per field. Exports from different school
// tools name the same column differently; all spellings funnel here after
// canonicalization.
var (
	emailKeys        = []string{"mail", "email", "adressemail", "mailetudiant", "emailetudiant", "courriel"}
	lastNameKeys     = []string{"nom", "nometudiant", "nomdefamille"}
	firstNameKeys    = []string{"prenom", "prenometudiant"}
	registrationKeys = []string{"netudiant", "numeroetudiant", "matricule", "identifiant"}
	phoneKeys        = []string{"telephone", "tel", "portable", "mobile"}
	addressKeys      = []string{"adresse"}
	campusKeys       = []string{"campus", "site"}
	programKeys      = []string{"filiere", "formation", "cursus"}
	yearKeys         = []string{"annee", "anneescolaire", "anneedetude", "promotion"}
	tariffKeys       = []string{"tarif", "prix", "tariftotal", "tarifformation", "montantformation"}
	rhythmKeys       = []string{"rythme", "rythmereglement", "rythmedepaiement"}
	commentKeys      = []string{"commentaire", "commentaires", "remarque", "remarques"}

	depositAmountKeys = []string{"acompte", "reglement1", "versement1", "echeance1"}
	depositMethodKeys = []string{"modeacompte", "modereglement1", "modeversement1", "modeecheance1", "mode1"}
	depositDateKeys   = []string{"dateacompte", "datereglement1", "dateversement1", "dateecheance1", "date1"}
)

func slotAmountKeys(slot int) []string {
	return []string{
		fmt.Sprintf("echeance%d", slot),
		fmt.Sprintf("reglement%d", slot),
		fmt.Sprintf("versement%d", slot),
	}
}

func slotMethodKeys(slot int) []string {
	return []string{
		fmt.Sprintf("modeecheance%d", slot),
		fmt.Sprintf("modereglement%d", slot),
		fmt.Sprintf("mode%d", slot),
	}
}

func slotDateKeys(slot int) []string {
	return []string{
		fmt.Sprintf("dateecheance%d", slot),
		fmt.Sprintf("datereglement%d", slot),
		fmt.Sprintf("date%d", slot),
	}
}

func slotPieceKeys(slot int) []string {
	return []string{
		fmt.Sprintf("npiece%d", slot),
		fmt.Sprintf("piece%d", slot),
		fmt.Sprintf("numeropiece%d", slot),
	}
}

// rawRow maps canonical header keys to cell values for one spreadsheet row.
// Ephemeral: discarded as soon as the row is parsed.
type rawRow map[string]string

func buildRow(keys, cells []string) rawRow {
	row := make(rawRow, len(keys))
	for i, k := range keys {
		if k == "" || i >= len(cells) {
			continue
		}
		row[k] = cells[i]
	}
	return row
}

// lookup returns the first non-blank value among the candidate keys.
func (r rawRow) lookup(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// ParseOutcome is the in-memory result of parsing a whole spreadsheet:
// deduplicated prospective students plus everything parsing alone can count.
type ParseOutcome struct {
	// Students in first-seen email order. A later row for the same email
	// replaced the earlier record in full.
	Students []*domain.ProspectiveStudent
	// RowAnomalies are findings that could not be attached to any student
	// (rows rejected for an invalid email).
	RowAnomalies []domain.Anomaly

	RowsTotal     int
	RowsSkipped   int
	StudentsFound int
}

// PaymentsFound counts the retained payments across the deduplicated set.
func (o *ParseOutcome) PaymentsFound() int {
	n := 0
	for _, s := range o.Students {
		n += len(s.Payments)
	}
	return n
}

// ParseSpreadsheet turns a raw spreadsheet export (tab, semicolon or comma
// separated) into deduplicated prospective students keyed by email. Later
// rows sharing an email overwrite earlier ones in full, payment list
// included.
func ParseSpreadsheet(raw string, now time.Time, anonymize bool) (*ParseOutcome, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty spreadsheet text")
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.Comma = sniffDelimiter(raw)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	keys := CanonicalizeHeaders(header)

	outcome := &ParseOutcome{}
	byEmail := make(map[string]int) // email -> index in outcome.Students

	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line is a row-level defect, not a
			// run-fatal one: skip it and keep going.
			outcome.RowsTotal++
			outcome.RowsSkipped++
			continue
		}
		outcome.RowsTotal++

		if len(cells) < 2 || allBlank(cells) {
			outcome.RowsSkipped++
			continue
		}

		student, rowAnoms := parseRow(buildRow(keys, cells), now, anonymize)
		outcome.RowAnomalies = append(outcome.RowAnomalies, rowAnoms...)
		if student == nil {
			continue
		}
		outcome.StudentsFound++

		if idx, seen := byEmail[student.Email]; seen {
			outcome.Students[idx] = student
		} else {
			byEmail[student.Email] = len(outcome.Students)
			outcome.Students = append(outcome.Students, student)
		}
	}

	return outcome, nil
}

// sniffDelimiter guesses the cell separator from the first line: pasted Excel
// exports are tab separated, French CSV exports use semicolons.
func sniffDelimiter(raw string) rune {
	line := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	switch {
	case strings.ContainsRune(line, '\t'):
		return '\t'
	case strings.Count(line, ";") >= strings.Count(line, ","):
		return ';'
	default:
		return ','
	}
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseRow turns one spreadsheet row into a prospective student with its
// parsed payments. A row without a usable email yields no student, only a
// critical anomaly.
func parseRow(row rawRow, now time.Time, anonymize bool) (*domain.ProspectiveStudent, []domain.Anomaly) {
	email := row.lookup(emailKeys...)
	if email == "" || !strings.Contains(email, "@") {
		return nil, []domain.Anomaly{{
			Category:    domain.AnomalyInvalidEmail,
			Severity:    domain.SeverityCritical,
			Description: "ligne ignorée : adresse mail absente ou invalide",
			Details: map[string]any{
				"email": email,
				"nom":   row.lookup(lastNameKeys...),
			},
			SuggestedAction: "corriger l'adresse mail dans le fichier source et réimporter la ligne",
			DetectedAt:      now,
		}}
	}
	if anonymize {
		email = anonymizeEmail(email)
	}

	s := &domain.ProspectiveStudent{
		Email:            email,
		LastName:         row.lookup(lastNameKeys...),
		FirstName:        row.lookup(firstNameKeys...),
		RegistrationID:   row.lookup(registrationKeys...),
		Phone:            row.lookup(phoneKeys...),
		Address:          row.lookup(addressKeys...),
		EnrollmentStatus: domain.EnrollmentActive,
		CampusName:       row.lookup(campusKeys...),
		ProgramName:      row.lookup(programKeys...),
		AcademicYearName: row.lookup(yearKeys...),
		ScheduleRhythm:   row.lookup(rhythmKeys...),
		Comment:          row.lookup(commentKeys...),
		// Prior-unpaid columns in these exports are unreliable and must
		// never be trusted; the balance always starts at zero.
		PriorBalance: decimal.Zero,
	}

	if s.LastName == "" || s.FirstName == "" {
		deriveNameFromEmail(s, now)
	}

	rawTariff := row.lookup(tariffKeys...)
	s.BasePrice = NormalizeAmount(rawTariff)
	if s.BasePrice.Sign() <= 0 {
		s.Anomalies = append(s.Anomalies, domain.Anomaly{
			Category:    domain.AnomalyInvalidTariff,
			Severity:    domain.SeverityAlert,
			Description: fmt.Sprintf("tarif absent ou invalide pour %s", s.FullName()),
			Details:     map[string]any{"email": s.Email, "tarif_brut": rawTariff},
			DetectedAt:  now,
		})
	}

	parseSlot(s, row, 1, depositAmountKeys, depositMethodKeys, depositDateKeys, now)
	for slot := 2; slot <= maxInstallmentSlot; slot++ {
		parseSlot(s, row, slot, slotAmountKeys(slot), slotMethodKeys(slot), slotDateKeys(slot), now)
	}

	if s.BasePrice.Sign() > 0 {
		total := decimal.Zero
		for _, p := range s.Payments {
			total = total.Add(p.Amount)
		}
		if total.GreaterThan(s.BasePrice.Mul(decimal.NewFromInt(2))) {
			s.Anomalies = append(s.Anomalies, domain.Anomaly{
				Category: domain.AnomalyInconsistentTotal,
				Severity: domain.SeverityAlert,
				Description: fmt.Sprintf("somme des règlements (%s) supérieure à 2x le tarif (%s) pour %s",
					total.StringFixed(2), s.BasePrice.StringFixed(2), s.FullName()),
				Details: map[string]any{
					"email": s.Email,
					"total": total.String(),
					"tarif": s.BasePrice.String(),
				},
				DetectedAt: now,
			})
		}
	}

	return s, nil
}

// parseSlot parses one installment slot. Slots with a non-positive or
// unparsable amount are skipped entirely: they count in neither "found" nor
// "imported". A parsable amount with an unparsable date is retained as an
// unpaid payment and recorded in the rejection list; partial information is
// still worth keeping.
func parseSlot(s *domain.ProspectiveStudent, row rawRow, slot int, amountKeys, methodKeys, dateKeys []string, now time.Time) {
	rawAmount := row.lookup(amountKeys...)
	amount := NormalizeAmount(rawAmount)
	if amount.Sign() <= 0 {
		return
	}

	method := row.lookup(methodKeys...)
	if method == "" {
		method = domain.MethodUnspecified
		s.Anomalies = append(s.Anomalies, domain.Anomaly{
			Category:    domain.AnomalyMissingMethod,
			Severity:    domain.SeverityInfo,
			Description: fmt.Sprintf("mode de règlement manquant pour l'échéance %d de %s", slot, s.FullName()),
			Details:     map[string]any{"email": s.Email, "echeance": slot, "montant": amount.String()},
			DetectedAt:  now,
		})
	}

	rawDate := row.lookup(dateKeys...)
	date := NormalizeDate(rawDate, now)

	p := domain.ProspectivePayment{
		Slot:        slot,
		Amount:      amount,
		Method:      method,
		Date:        date.Value,
		RawAmount:   rawAmount,
		PieceNumber: row.lookup(slotPieceKeys(slot)...),
		Status:      domain.PaymentValid,
	}
	if date.Invalid {
		p.Status = domain.PaymentUnpaid
		p.DateInvalid = true
		p.RawDate = date.Original
		s.Rejections = append(s.Rejections, domain.PaymentRejection{
			StudentName: s.FullName(),
			Email:       s.Email,
			Slot:        slot,
			RawAmount:   rawAmount,
			RawDate:     rawDate,
			Reason:      "date de règlement illisible, échéance conservée comme impayée",
		})
	}

	if s.BasePrice.Sign() > 0 && amount.GreaterThan(s.BasePrice.Mul(decimal.NewFromInt(3))) {
		s.Anomalies = append(s.Anomalies, domain.Anomaly{
			Category: domain.AnomalySuspectAmount,
			Severity: domain.SeverityAlert,
			Description: fmt.Sprintf("échéance %d de %s (%s) dépasse 3x le tarif (%s)",
				slot, s.FullName(), amount.StringFixed(2), s.BasePrice.StringFixed(2)),
			Details: map[string]any{
				"email":    s.Email,
				"echeance": slot,
				"montant":  amount.String(),
				"tarif":    s.BasePrice.String(),
			},
			DetectedAt: now,
		})
	}

	s.Payments = append(s.Payments, p)
}

// deriveNameFromEmail fills missing name parts from the email local part,
// split on '.', '_' and '-' then capitalized: jean.dupont@... -> Jean Dupont.
func deriveNameFromEmail(s *domain.ProspectiveStudent, now time.Time) {
	local := s.Email
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}

	// Both halves come from the address: a lone surname next to an empty
	// first-name cell is as suspect as the empty cell itself.
	s.FirstName = ""
	s.LastName = ""
	if len(parts) > 0 {
		s.FirstName = parts[0]
	}
	if len(parts) > 1 {
		s.LastName = strings.Join(parts[1:], " ")
	}

	if s.FirstName == "" || s.LastName == "" {
		s.Anomalies = append(s.Anomalies, domain.Anomaly{
			Category:    domain.AnomalyIncompleteName,
			Severity:    domain.SeverityInfo,
			Description: fmt.Sprintf("identité incomplète pour %s, nom reconstruit depuis l'adresse mail", s.Email),
			Details:     map[string]any{"email": s.Email, "nom": s.LastName, "prenom": s.FirstName},
			DetectedAt:  now,
		})
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// anonymizeEmail replaces a real address by a deterministic pseudonym so that
// within-run and across-run deduplication still collapse the same source
// address onto the same student.
func anonymizeEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return fmt.Sprintf("etudiant-%x@anonyme.local", sum[:5])
}
