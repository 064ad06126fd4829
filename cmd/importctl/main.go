// importctl posts a spreadsheet export to a running scolaris billing server
// and renders the resulting import report.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/scolaris/billing/internal/domain"
	"github.com/scolaris/billing/internal/ingestion"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "path to the spreadsheet export (csv/tsv)")
	server := flag.String("server", envDefault("SCOLARIS_SERVER", "http://localhost:8080"), "server base URL")
	runID := flag.String("run-id", "", "optional run id to use")
	anonymize := flag.Bool("anonymize", false, "replace emails by deterministic pseudonyms")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	req := ingestion.ImportRequest{
		RawSpreadsheetText:  string(data),
		RunID:               *runID,
		UseAnonymizedEmails: *anonymize,
	}
	body, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(*server+"/api/v1/imports", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("post import: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		color.Red("import failed (%s): %s", resp.Status, apiErr.Error)
		os.Exit(1)
	}

	var result ingestion.ImportResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Fatalf("decode response: %v", err)
	}

	printReport(*server, &result)
}

func printReport(server string, result *ingestion.ImportResponse) {
	color.Green("import run %s completed", result.RunID)
	fmt.Println()

	s := result.Stats
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Counter", "Value"})
	table.Append([]string{"rows total", strconv.Itoa(s.RowsTotal)})
	table.Append([]string{"rows skipped", strconv.Itoa(s.RowsSkipped)})
	table.Append([]string{"students found", strconv.Itoa(s.StudentsFound)})
	table.Append([]string{"students unique", strconv.Itoa(s.StudentsUnique)})
	table.Append([]string{"students imported", strconv.Itoa(s.StudentsImported)})
	table.Append([]string{"payments found", strconv.Itoa(s.PaymentsFound)})
	table.Append([]string{"payments imported", strconv.Itoa(s.PaymentsImported)})
	table.Append([]string{"payments rejected", strconv.Itoa(s.PaymentsRejected)})
	table.Append([]string{"anomalies found", strconv.Itoa(s.AnomaliesFound)})
	table.Append([]string{"student import rate", fmt.Sprintf("%.2f%%", s.StudentImportRate)})
	table.Append([]string{"payment import rate", fmt.Sprintf("%.2f%%", s.PaymentImportRate)})
	table.Append([]string{"insert success rate", fmt.Sprintf("%.2f%%", s.InsertSuccessRate)})
	table.Render()

	if s.PaymentsRejected > 0 {
		fmt.Println()
		color.Yellow("%d payment(s) rejected or flagged; details:", s.PaymentsRejected)
		printRejections(server, result.RunID)
	}
}

// printRejections fetches the persisted run report for its rejection detail.
func printRejections(server, runID string) {
	resp, err := http.Get(server + "/api/v1/imports/" + runID)
	if err != nil {
		log.Printf("fetch run report: %v", err)
		return
	}
	defer resp.Body.Close()

	var run domain.ImportRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Printf("decode run report: %v", err)
		return
	}
	if len(run.Rejections) == 0 {
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Student", "Email", "Slot", "Raw Amount", "Raw Date", "Reason"})
	for _, r := range run.Rejections {
		table.Append([]string{
			r.StudentName, r.Email, strconv.Itoa(r.Slot),
			r.RawAmount, r.RawDate, r.Reason,
		})
	}
	table.Render()
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
