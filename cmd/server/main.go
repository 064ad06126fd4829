package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scolaris/billing/internal/api"
	"github.com/scolaris/billing/internal/config"
	"github.com/scolaris/billing/internal/ingestion"
	"github.com/scolaris/billing/internal/reconcile"
	"github.com/scolaris/billing/internal/repository"
)

func main() {
	// A local .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("initializing database", zap.String("path", cfg.DBPath))
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("init db", zap.Error(err))
	}
	defer db.Close()

	// Create repositories.
	studentRepo := repository.NewStudentRepo(db)
	dossierRepo := repository.NewDossierRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	anomalyRepo := repository.NewAnomalyRepo(db)
	runRepo := repository.NewImportRunRepo(db)
	refRepo := repository.NewRefDimensionRepo(db)
	billingRepo := repository.NewBillingRepo(db)

	// Create services.
	writer := reconcile.NewWriter(studentRepo, dossierRepo, paymentRepo, cfg.PaymentChunkSize, logger)
	detector := reconcile.NewDetector(paymentRepo, logger)
	importSvc := ingestion.NewService(runRepo, anomalyRepo, refRepo, writer, detector, logger)

	router := api.NewRouter(api.Deps{
		Students:  studentRepo,
		Dossiers:  dossierRepo,
		Payments:  paymentRepo,
		Anomalies: anomalyRepo,
		Runs:      runRepo,
		Billing:   billingRepo,
		ImportSvc: importSvc,
		Logger:    logger,
	})

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("scolaris billing server listening",
		zap.String("addr", addr),
		zap.String("env", cfg.Env),
		zap.String("api_base", "http://"+addr+"/api/v1"))

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
