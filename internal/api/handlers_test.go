package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/ingestion"
	"github.com/scolaris/billing/internal/reconcile"
	"github.com/scolaris/billing/internal/repository"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	students := repository.NewStudentRepo(db)
	dossiers := repository.NewDossierRepo(db)
	payments := repository.NewPaymentRepo(db)
	anomalies := repository.NewAnomalyRepo(db)
	runs := repository.NewImportRunRepo(db)
	writer := reconcile.NewWriter(students, dossiers, payments, reconcile.DefaultChunkSize, logger)
	detector := reconcile.NewDetector(payments, logger)
	importSvc := ingestion.NewService(runs, anomalies, repository.NewRefDimensionRepo(db), writer, detector, logger)

	router := NewRouter(Deps{
		Students:  students,
		Dossiers:  dossiers,
		Payments:  payments,
		Anomalies: anomalies,
		Runs:      runs,
		Billing:   repository.NewBillingRepo(db),
		ImportSvc: importSvc,
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

const exportBody = "Nom;Prénom;Mail;Campus;Filière;Année;Tarif;Acompte;Mode acompte;Date acompte\n" +
	"Dupont;Jean;jean.dupont@mail.fr;Paris;Informatique;1ère année;4500;500;CB;15/03/2024\n" +
	"Martin;Sophie;sophie.martin@mail.fr;Lyon;Droit;1ère année;3800;300;CB;IMPAYE\n"

func postImport(t *testing.T, srv *httptest.Server, req ingestion.ImportRequest) ingestion.ImportResponse {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/v1/imports", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ingestion.ImportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	out := postImport(t, srv, ingestion.ImportRequest{RawSpreadsheetText: exportBody})
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 2, out.StudentsImported)
	assert.Equal(t, 2, out.PaymentsImported)
	assert.Equal(t, 1, out.Stats.PaymentsRejected)
}

func TestImportEndpoint_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/imports", "application/json",
		bytes.NewReader([]byte("not json at all")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/imports", "application/json",
		bytes.NewReader([]byte(`{"raw_spreadsheet_text":"   "}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportRunEndpoints(t *testing.T) {
	srv := newTestServer(t)
	out := postImport(t, srv, ingestion.ImportRequest{RawSpreadsheetText: exportBody, RunID: "run-api-1"})
	require.Equal(t, "run-api-1", out.RunID)

	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp := getJSON(t, srv, "/api/v1/imports/run-api-1", &run)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-api-1", run.ID)
	assert.Equal(t, "completed", run.Status)

	resp = getJSON(t, srv, "/api/v1/imports/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var list struct {
		Runs []json.RawMessage `json:"runs"`
	}
	resp = getJSON(t, srv, "/api/v1/imports", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Runs, 1)
}

func TestStudentEndpoints(t *testing.T) {
	srv := newTestServer(t)
	postImport(t, srv, ingestion.ImportRequest{RawSpreadsheetText: exportBody})

	var list struct {
		Students []struct {
			ID            string `json:"id"`
			Email         string `json:"email"`
			PaymentStatus string `json:"payment_status"`
		} `json:"students"`
		Total int `json:"total"`
	}
	resp := getJSON(t, srv, "/api/v1/students", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, list.Total)
	require.Len(t, list.Students, 2)
	for _, s := range list.Students {
		assert.NotEmpty(t, s.PaymentStatus)
	}

	var billing struct {
		Student struct {
			Email string `json:"email"`
		} `json:"student"`
		Dossiers      []json.RawMessage `json:"dossiers"`
		PaymentStatus string            `json:"payment_status"`
	}
	resp = getJSON(t, srv, "/api/v1/students/"+list.Students[0].ID+"/billing", &billing)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, list.Students[0].Email, billing.Student.Email)
	assert.Len(t, billing.Dossiers, 1)
	assert.NotEmpty(t, billing.PaymentStatus)

	resp = getJSON(t, srv, "/api/v1/students/nope/billing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnomalyAndDashboardEndpoints(t *testing.T) {
	srv := newTestServer(t)
	out := postImport(t, srv, ingestion.ImportRequest{RawSpreadsheetText: exportBody})

	var summary struct {
		Total int `json:"total"`
	}
	resp := getJSON(t, srv, "/api/v1/anomalies/summary", &summary)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, out.AnomaliesFound, summary.Total)

	var anomalies struct {
		Total int `json:"total"`
	}
	resp = getJSON(t, srv, "/api/v1/anomalies?severity=info", &anomalies)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var dash struct {
		Totals     json.RawMessage   `json:"totals"`
		RecentRuns []json.RawMessage `json:"recent_runs"`
	}
	resp = getJSON(t, srv, "/api/v1/dashboard", &dash)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, dash.Totals)
	assert.Len(t, dash.RecentRuns, 1)
}
