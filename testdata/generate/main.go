// Generates a deterministic sample spreadsheet export exercising the import
// pipeline: clean rows, IMPAYE dates, malformed emails, duplicate emails and
// suspect amounts.
package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	lastNames  = []string{"Dupont", "Martin", "Bernard", "Lefèvre", "Moreau", "García", "Nguyen", "Petit", "Rousseau", "Benali"}
	firstNames = []string{"Jean", "Marie", "Léa", "Hugo", "Chloé", "Lucas", "Emma", "Nathan", "Inès", "Louis"}
	campuses   = []string{"Paris", "Lyon", "Bordeaux"}
	programs   = []string{"Informatique", "Commerce", "Design"}
	years      = []string{"1ère année", "2ème année", "Prépa"}
	methods    = []string{"CB", "Virement", "Chèque", "Espèces"}
)

func main() {
	rng := rand.New(rand.NewSource(42))
	path := filepath.Join(findTestdataDir(), "export_sample.csv")

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'

	header := []string{
		"Nom", "Prénom", "Mail", "Téléphone", "Campus", "Filière", "Année",
		"Tarif", "Acompte", "Mode acompte", "Date acompte",
	}
	for i := 2; i <= 5; i++ {
		header = append(header,
			fmt.Sprintf("Echéance %d", i),
			fmt.Sprintf("Mode échéance %d", i),
			fmt.Sprintf("Date échéance %d", i),
		)
	}
	if err := w.Write(header); err != nil {
		fmt.Fprintf(os.Stderr, "write header: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < 40; i++ {
		last := lastNames[rng.Intn(len(lastNames))]
		first := firstNames[rng.Intn(len(firstNames))]
		email := fmt.Sprintf("%s.%s%d@exemple.fr", lower(first), lower(last), i)

		// A few defective rows.
		switch i {
		case 7:
			email = "pas-une-adresse" // invalid email, row rejected
		case 13:
			email = fmt.Sprintf("%s.%s%d@exemple.fr", lower(firstNames[0]), lower(lastNames[0]), 12) // duplicate of row 12
		}

		tariff := fmt.Sprintf("%d %d00,00 €", 1+rng.Intn(8), rng.Intn(10))
		row := []string{
			last, first, email,
			fmt.Sprintf("06%08d", rng.Intn(100000000)),
			campuses[rng.Intn(len(campuses))],
			programs[rng.Intn(len(programs))],
			years[rng.Intn(len(years))],
			tariff,
			"500,00", methods[rng.Intn(len(methods))], randomDate(rng),
		}

		for slot := 2; slot <= 5; slot++ {
			if rng.Float64() < 0.25 {
				row = append(row, "", "", "") // empty slot
				continue
			}
			amount := fmt.Sprintf("%d50,00", 1+rng.Intn(5))
			date := randomDate(rng)
			if rng.Float64() < 0.15 {
				date = "IMPAYE"
			}
			method := methods[rng.Intn(len(methods))]
			if rng.Float64() < 0.1 {
				method = ""
			}
			row = append(row, amount, method, date)
		}

		if err := w.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "write row %d: %v\n", i, err)
			os.Exit(1)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", path)
}

func randomDate(rng *rand.Rand) string {
	return fmt.Sprintf("%02d/%02d/2024", 1+rng.Intn(28), 1+rng.Intn(12))
}

func lower(s string) string {
	b := []rune(s)
	for i, r := range b {
		if r >= 'A' && r <= 'Z' {
			b[i] = r + ('a' - 'A')
		}
	}
	return string(b)
}

func findTestdataDir() string {
	candidates := []string{"testdata", filepath.Join("..", "..", "testdata"), "."}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "."
}
