package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/moatazm17/PicDo-sub000/internal/classify"
	"github.com/moatazm17/PicDo-sub000/internal/classify/openai"
	"github.com/moatazm17/PicDo-sub000/internal/common"
	"github.com/moatazm17/PicDo-sub000/internal/errcode"
	"github.com/moatazm17/PicDo-sub000/internal/export"
	"github.com/moatazm17/PicDo-sub000/internal/extract"
	"github.com/moatazm17/PicDo-sub000/internal/imaging"
	"github.com/moatazm17/PicDo-sub000/internal/pipeline"
	"github.com/moatazm17/PicDo-sub000/internal/quota"
	"github.com/moatazm17/PicDo-sub000/internal/server"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

func main() {
	cfg := common.LoadConfig()

	fs := ff.NewFlagSet("picdod")
	var (
		addr        = fs.StringLong("addr", cfg.Server.Addr, "HTTP listen address")
		dbDriver    = fs.StringLong("db-driver", cfg.Store.Driver, "Database driver: 'sqlite' or 'postgres'")
		dbDSN       = fs.StringLong("db", cfg.Store.DSN, "Database DSN")
		workers     = fs.IntLong("workers", cfg.Pipeline.Workers, "Pipeline worker count")
		queueSize   = fs.IntLong("queue-size", cfg.Pipeline.QueueSize, "Pipeline queue capacity")
		ocrEngine   = fs.StringLong("ocr-engine", cfg.OCR.Engine, "OCR engine: 'tesseract' or 'gemini'")
		maintenance = fs.BoolLong("maintenance", "Reject new submissions")
	)
	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PICDO"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.Addr = *addr
	cfg.Store.Driver = *dbDriver
	cfg.Store.DSN = *dbDSN
	cfg.Pipeline.Workers = *workers
	cfg.Pipeline.QueueSize = *queueSize
	cfg.OCR.Engine = *ocrEngine
	cfg.Server.Maintenance = cfg.Server.Maintenance || *maintenance

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Driver:           cfg.Store.Driver,
		DSN:              cfg.Store.DSN,
		MaxConns:         cfg.Store.MaxConns,
		MinConns:         cfg.Store.MinConns,
		MaxConnLifetime:  cfg.Store.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Store.MaxConnIdleTime,
		DialTimeout:      cfg.Store.DialTimeout,
		StatementTimeout: cfg.Store.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "err", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("database health failed", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Error("migrating database", "err", err)
		os.Exit(1)
	}

	jobs := store.NewJobRepository(db, logger)
	users := store.NewUserRepository(db, logger)

	// Jobs that were in flight when the previous process died can never
	// complete; mark them failed so clients stop polling.
	if n, err := jobs.FailOrphans(ctx, string(errcode.ProcessingFailed), "processing interrupted by restart"); err != nil {
		logger.Error("orphan sweep failed", "err", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Warn("orphan sweep done", "failed_jobs", n)
	}

	var extractor extract.TextExtractor
	switch cfg.OCR.Engine {
	case "gemini":
		g, err := extract.NewGemini(ctx, cfg.OCR.GeminiAPIKey, cfg.OCR.GeminiModel, logger)
		if err != nil {
			logger.Error("initializing gemini OCR", "err", err)
			os.Exit(1)
		}
		defer g.Close()
		extractor = g
	case "tesseract":
		extractor = extract.NewTesseract(extract.TesseractConfig{
			Binary:      cfg.OCR.TesseractBinary,
			Lang:        cfg.OCR.TesseractLang,
			TessdataDir: cfg.OCR.TessdataDir,
		}, logger)
	default:
		logger.Error("unknown OCR engine", "engine", cfg.OCR.Engine)
		os.Exit(1)
	}

	var classifier classify.Classifier = openai.NewClient(openai.Config{
		APIKey:      cfg.Classify.APIKey,
		BaseURL:     cfg.Classify.BaseURL,
		Model:       cfg.Classify.Model,
		Temperature: cfg.Classify.Temperature,
		Timeout:     cfg.Classify.Timeout,
		Lenient:     true,
	}, logger)

	guard := quota.NewGuard(jobs, cfg.Quota.MonthlyLimit, logger)
	guard.FailOpen = cfg.Quota.FailOpen

	orch := pipeline.NewOrchestrator(jobs, imaging.Processor{}, extractor, classifier, logger)
	queue := pipeline.NewQueue(orch, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithTaskTimeout(cfg.Pipeline.TaskTimeout),
	)

	exporter := export.NewService(jobs, logger)

	srv := server.New(server.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Maintenance:    cfg.Server.Maintenance,
	}, jobs, users, guard, queue, exporter, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr, "ocr_engine", cfg.OCR.Engine, "db_driver", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	queue.Shutdown(shutdownCtx)
	fmt.Println("stopped.")
}
