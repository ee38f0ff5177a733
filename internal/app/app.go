// Package app wires configuration into the consolidation engine and its infrastructure.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/archive"
	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/lease"
	"github.com/Ramsey-B/clover/pkg/metrics"
	cloverredis "github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const (
	DepTracing  = "tracing"
	DepPostgres = "postgres"
	DepRedis    = "redis"
	DepKafka    = "kafka"
	DepArchive  = "archive"
	DepEngine   = "engine"
)

type Options struct {
	// Migrate applies db migrations once postgres is reachable.
	Migrate bool
	Version string
}

// App owns every long lived dependency of the service.
type App struct {
	Config  *config.Config
	Logger  ectologger.Logger
	Health  *health.Checker
	Engine  *consolidation.Engine
	Runs    *repositories.ConsolidationRunRepository
	startup *startup.Startup
	options Options

	db            database.DB
	redis         *cloverredis.Client
	producer      *kafka.Producer
	archiver      *archive.S3Archiver
	traceShutdown func(context.Context) error
}

func New(cfg *config.Config, logger ectologger.Logger, options Options) *App {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Health:  health.NewChecker(options.Version),
		startup: startup.New(logger, cfg.StartupMaxAttempts),
		options: options,
	}

	a.startup.Add(startup.Func{ID: DepTracing, OnStart: a.startTracing, OnStop: a.stopTracing})
	a.startup.Add(startup.Func{ID: DepPostgres, OnStart: a.startPostgres, OnStop: a.stopPostgres})

	parents := []string{DepPostgres}
	if cfg.LeaseBackend == "redis" {
		a.startup.Add(startup.Func{ID: DepRedis, OnStart: a.startRedis, OnStop: a.stopRedis})
		parents = append(parents, DepRedis)
	}
	if cfg.KafkaEnabled {
		a.startup.Add(startup.Func{ID: DepKafka, OnStart: a.startKafka, OnStop: a.stopKafka})
		parents = append(parents, DepKafka)
	}
	if cfg.ArchiveEnabled {
		a.startup.Add(startup.Func{ID: DepArchive, OnStart: a.startArchive})
		parents = append(parents, DepArchive)
	}
	a.startup.Add(startup.Func{ID: DepEngine, Parents: parents, OnStart: a.startEngine})

	return a
}

// Start brings up every dependency and marks the service ready.
func (a *App) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.Health.SetReady(true)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}

func (a *App) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Init(ctx, tracing.ProviderConfig{
		ServiceName: a.Config.AppName,
		Exporter:    a.Config.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.Config.OTLPEndpoint,
			Protocol: a.Config.OTLPProtocol,
			Insecure: a.Config.OTLPInsecure,
			Timeout:  a.Config.OTLPTimeout,
		},
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}
	a.traceShutdown = shutdown
	return nil
}

func (a *App) stopTracing(ctx context.Context) error {
	if a.traceShutdown == nil {
		return nil
	}
	return a.traceShutdown(ctx)
}

func (a *App) startPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          a.Config.DatabaseDriver,
		Host:            a.Config.DatabaseHost,
		Port:            a.Config.DatabasePort,
		UserName:        a.Config.DatabaseUserName,
		Password:        a.Config.DatabasePassword,
		Name:            a.Config.DatabaseName,
		SSLMode:         a.Config.DatabaseSSLMode,
		MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
		MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
	}, a.Logger)
	if err != nil {
		return err
	}

	if a.options.Migrate {
		migrator := database.NewMigrator(a.Logger, database.MigrationConfig{
			Folder:       a.Config.DatabaseMigrationFolderPath,
			Version:      a.Config.DatabaseMigrationVersion,
			Force:        a.Config.DatabaseMigrationForce,
			AutoRollback: a.Config.DatabaseMigrationAutoRollback,
		})
		if err := migrator.Up(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	a.db = db
	a.Health.Add(DepPostgres, true, db.PingContext)
	return nil
}

func (a *App) stopPostgres(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *App) startRedis(ctx context.Context) error {
	client, err := cloverredis.NewClient(ctx, cloverredis.Config{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.Health.Add(DepRedis, true, client.Ping)
	return nil
}

func (a *App) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *App) startKafka(context.Context) error {
	a.producer = kafka.NewProducer(kafka.Config{
		Brokers:      a.Config.KafkaBrokers,
		Topic:        a.Config.KafkaOutputTopic,
		BatchSize:    a.Config.KafkaBatchSize,
		BatchTimeout: time.Duration(a.Config.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.Config.KafkaRequiredAcks,
		Compression:  a.Config.KafkaCompression,
	}, a.Logger)
	return nil
}

func (a *App) stopKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *App) startArchive(ctx context.Context) error {
	archiver, err := archive.NewS3Archiver(ctx, archive.Config{
		Bucket:   a.Config.ArchiveBucket,
		Prefix:   a.Config.ArchivePrefix,
		Region:   a.Config.ArchiveRegion,
		Endpoint: a.Config.ArchiveEndpoint,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.archiver = archiver
	return nil
}

func (a *App) startEngine(context.Context) error {
	resources := repositories.NewResourceRepository(a.db, a.Logger)
	children := repositories.NewChildRecordRepository(a.db, a.Logger)
	a.Runs = repositories.NewConsolidationRunRepository(a.db, a.Logger)

	var leases lease.Registry = lease.NewMemoryRegistry()
	if a.redis != nil {
		leases = lease.NewRedisRegistry(a.redis, "")
	}

	var publisher consolidation.EventPublisher
	if a.producer != nil {
		publisher = events.NewEmitter(a.producer)
	}
	var archiver consolidation.Archiver
	if a.archiver != nil {
		archiver = a.archiver
	}

	a.Engine = Build(EngineDeps{
		Resources:  resources,
		Children:   children,
		Transactor: a.db,
		Runs:       a.Runs,
		Leases:     leases,
		Events:     publisher,
		Archiver:   archiver,
	}, a.Config, a.Logger)
	return nil
}

// EngineDeps are the stores and sinks an Engine is assembled from.
type EngineDeps struct {
	Resources  consolidation.ResourceStore
	Children   consolidation.ChildRecordStore
	Transactor consolidation.Transactor
	Runs       consolidation.RunRecorder
	Leases     lease.Registry
	Events     consolidation.EventPublisher
	Archiver   consolidation.Archiver
}

// Build assembles the engine from configuration. Nil sinks are skipped by the executor.
func Build(deps EngineDeps, cfg *config.Config, logger ectologger.Logger) *consolidation.Engine {
	recorder := metrics.NewRecorder()
	timeout := cfg.ConsolidationStoreTimeout

	index := consolidation.NewChildRecordIndex(deps.Children, timeout, logger)
	scoring := consolidation.NewScoringEngine(consolidation.ScoringWeights{
		ChildRecord:    cfg.ScoreWeightChildRecord,
		Schema:         cfg.ScoreWeightSchema,
		Documentation:  cfg.ScoreWeightDocumentation,
		Active:         cfg.ScoreWeightActive,
		BaseURL:        cfg.ScoreWeightBaseURL,
		CanonicalName:  cfg.ScoreWeightCanonicalName,
		CanonicalNames: cfg.CanonicalNames,
	})
	validator := consolidation.NewValidator(index, consolidation.ValidatorOptions{StrictSchema: cfg.ConsolidationStrictSchema}, recorder, logger)

	return &consolidation.Engine{
		Recommender: consolidation.NewRecommender(deps.Resources, index, scoring, timeout, recorder, logger),
		Validator:   validator,
		Executor: consolidation.NewExecutor(consolidation.ExecutorConfig{
			Resources:     deps.Resources,
			Children:      deps.Children,
			Transactor:    deps.Transactor,
			Validator:     validator,
			Leases:        deps.Leases,
			Runs:          deps.Runs,
			Events:        deps.Events,
			Archiver:      deps.Archiver,
			Metrics:       recorder,
			Logger:        logger,
			Transactional: cfg.ConsolidationTransactional,
			StoreTimeout:  timeout,
			LeaseTTL:      cfg.LeaseTTL,
		}),
		Detector: consolidation.NewDetector(deps.Resources, cfg.DetectorPageSize, timeout, logger),
	}
}
