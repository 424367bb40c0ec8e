package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Gobusters/ectologger"

	assetrepo "github.com/Ramsey-B/fern/internal/repositories/asset"
	batchrepo "github.com/Ramsey-B/fern/internal/repositories/batch"
	sourcerepo "github.com/Ramsey-B/fern/internal/repositories/datasource"
	goldrepo "github.com/Ramsey-B/fern/internal/repositories/gold"
	pricerepo "github.com/Ramsey-B/fern/internal/repositories/price"
	checkrepo "github.com/Ramsey-B/fern/internal/repositories/qualitycheck"
	stagingrepo "github.com/Ramsey-B/fern/internal/repositories/staging"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/gold"
	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/quality"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	batchroutes "github.com/Ramsey-B/fern/pkg/routes/batch"
	goldroutes "github.com/Ramsey-B/fern/pkg/routes/gold"
	healthroutes "github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/staging"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const version = "1.0.0"

func fatal(logger ectologger.Logger, err error, msg string) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}

func main() {
	ingestFiles := flag.String("ingest", "", "comma-separated CSV files to ingest, then exit")
	symbolHint := flag.String("symbol", "", "symbol to apply to every ingested file")
	dryRun := flag.Bool("dry-run", false, "stage and score without writing to the database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Options{
		AppName: cfg.AppName,
		Level:   cfg.LogLevel,
		Pretty:  cfg.PrettyLogs,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			fatal(logger, err, "failed to set up tracing")
		}
		defer shutdown(ctx)
	}

	db, err := database.Connect(ctx, logger, database.ConnectionOptions{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		fatal(logger, err, "failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(cfg, logger, db); err != nil {
		fatal(logger, err, "failed to run migrations")
	}

	// Repositories
	assets := assetrepo.NewRepository(db, logger)
	batches := batchrepo.NewRepository(db, logger)
	sources := sourcerepo.NewRepository(db, logger)
	prices := pricerepo.NewRepository(db, logger)
	checks := checkrepo.NewRepository(db, logger)
	staged := stagingrepo.NewRepository(db, logger)
	goldStore := goldrepo.NewRepository(db, logger)

	scorer, err := buildScorer(cfg, logger)
	if err != nil {
		fatal(logger, err, "invalid quality configuration")
	}

	ldr := loader.NewLoader(db, assets, batches, prices, checks, logger, loader.Options{
		BatchSize: cfg.LoadBatchSize,
		TxTimeout: cfg.LoadTxTimeout,
	})

	var redisClient *fernredis.Client
	var locker gold.Locker
	if cfg.RedisEnabled {
		redisClient, err = fernredis.NewClient(fernredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			fatal(logger, err, "failed to connect to redis")
		}
		defer redisClient.Close()
		locker = fernredis.NewLocker(redisClient, "")
	}

	refresher := gold.NewRefresher(goldStore, locker, logger, gold.Options{
		LockTTL: cfg.GoldRefreshLockTTL,
	})

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := fernkafka.NewProducer(fernkafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	mapping := staging.DefaultColumnMapping()
	stager := staging.NewNormalizer(staged, logger, mapping)
	dryStager := staging.NewNormalizer(nil, logger, mapping)

	pipe := pipeline.NewPipeline(sources, batches, stager, dryStager, scorer, ldr, refresher, emitter, logger, pipeline.Options{
		SourceName:         cfg.DefaultSourceName,
		DefaultGranularity: models.Granularity(cfg.DefaultGranularity),
		DefaultAssetType:   models.AssetTypeStock,
		RefreshAfterLoad:   cfg.GoldRefreshAfterLoad,
		RefreshConcurrent:  cfg.GoldRefreshConcurrent,
		Workers:            cfg.PipelineWorkers,
	})

	if *ingestFiles != "" {
		os.Exit(runIngest(ctx, pipe, logger, *ingestFiles, *symbolHint, *dryRun))
	}

	serve(cfg, logger, db, redisClient, batches, checks, refresher, emitter)
}

// runIngest processes the given files through the pipeline and returns
// the process exit code.
func runIngest(ctx context.Context, pipe *pipeline.Pipeline, logger ectologger.Logger, files, symbolHint string, dryRun bool) int {
	var requests []pipeline.FileRequest
	for _, path := range strings.Split(files, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		requests = append(requests, pipeline.FileRequest{
			Path:       path,
			SymbolHint: symbolHint,
			DryRun:     dryRun,
		})
	}

	results := pipe.IngestFiles(ctx, requests)

	exitCode := 0
	for _, res := range results {
		fields := map[string]any{"file": res.Path}
		if res.Report != nil {
			fields["quality_score"] = res.Report.OverallScore
		}
		if res.Batch != nil {
			fields["batch_id"] = res.Batch.ID
			fields["status"] = res.Batch.Status
		}
		if res.Err != nil {
			exitCode = 1
			logger.WithError(res.Err).WithFields(fields).Error("Ingestion failed")
			continue
		}
		logger.WithFields(fields).Info("Ingestion finished")
	}
	return exitCode
}

func serve(
	cfg *config.Config,
	logger ectologger.Logger,
	db database.DB,
	redisClient *fernredis.Client,
	batches *batchrepo.Repository,
	checks *checkrepo.Repository,
	refresher *gold.Refresher,
	emitter *events.Emitter,
) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}

	var redisPing interface{ Ping() error }
	if redisClient != nil {
		redisPing = redisClient
	}
	checker := healthroutes.NewChecker(db, redisPing, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		auth, err := middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			fatal(logger, err, "failed to build oidc middleware")
		}
		api.Use(auth)
	} else {
		api.Use(middleware.TestAuth())
	}

	batchroutes.NewHandler(batches, checks, logger).Register(api.Group("/batches"))
	goldroutes.NewHandler(refresher, emitter, logger, cfg.GoldRefreshConcurrent).Register(api.Group("/gold"))

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Listening on :%d", cfg.Port)
		checker.SetReady(true)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func buildScorer(cfg *config.Config, logger ectologger.Logger) (*quality.Scorer, error) {
	minDate, err := time.Parse("2006-01-02", cfg.QualityMinDate)
	if err != nil {
		return nil, fmt.Errorf("invalid QC_MIN_DATE %q: %w", cfg.QualityMinDate, err)
	}

	return quality.NewScorer(quality.Thresholds{
		MinScore:        cfg.QualityMinScore,
		HardFloor:       cfg.QualityHardFloor,
		MaxNullPct:      cfg.QualityMaxNullPct,
		FailNullPct:     cfg.QualityFailNullPct,
		MaxDuplicatePct: cfg.QualityMaxDuplicatePct,
		MinDate:         minDate,
	}, quality.Weights{
		Completeness: cfg.WeightCompleteness,
		Validity:     cfg.WeightValidity,
		Consistency:  cfg.WeightConsistency,
		Uniqueness:   cfg.WeightUniqueness,
	}, logger), nil
}

func runMigrations(cfg *config.Config, logger ectologger.Logger, db database.DB) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("unexpected database implementation %T", db)
	}

	driver, err := database.NewPostgresDriver(instance.DB)
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return ms.Migrate(cfg.DatabaseName, driver)
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingOTLPEndpoint,
		Insecure: cfg.TracingOTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(attribute.String("service.name", cfg.AppName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}
