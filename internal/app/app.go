// Package app wires configuration into running components. The server, the
// worker, and tests share it so every entry point builds the same graph.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/order-reconciler/internal/backfill"
	"github.com/ignite/order-reconciler/internal/buildstate"
	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/config"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/eventlog"
	"github.com/ignite/order-reconciler/internal/exclusion"
	"github.com/ignite/order-reconciler/internal/export"
	"github.com/ignite/order-reconciler/internal/importer"
	"github.com/ignite/order-reconciler/internal/metrics"
	"github.com/ignite/order-reconciler/internal/notify"
	"github.com/ignite/order-reconciler/internal/pipeline"
	"github.com/ignite/order-reconciler/internal/pkg/awsconf"
	"github.com/ignite/order-reconciler/internal/pkg/distlock"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/repository/postgres"
	"github.com/ignite/order-reconciler/internal/service/banned"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// BuildLockKey names the lock shared by builds and date backfills.
const BuildLockKey = "cleanmaster:build_lock"

// App holds the long-lived clients and the composed pipeline.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB      *sql.DB
	Redis   *redis.Client
	S3      *s3.Client
	Metrics *metrics.Registry

	// Banned is nil without a database.
	Banned      *banned.Service
	BannedCache *exclusion.Cache
	Pipeline    *pipeline.Pipeline
}

// New connects every configured dependency and assembles the pipeline. On
// error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	logger.SetRedactPII(cfg.Log.RedactPII)

	a = &App{
		Config:  cfg,
		Log:     logger.New(os.Stdout, level).With("service", "order-reconciler"),
		Metrics: metrics.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if cfg.Database.URL != "" {
		if a.DB, err = openDatabase(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}
	if cfg.Redis.Addr != "" {
		if a.Redis, err = openRedis(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	var awsCfg aws.Config
	needAWS := cfg.Export.Enabled || cfg.Notify.Enabled || cfg.Build.StateBackend == buildstate.BackendDynamoDB
	if needAWS {
		awsCfg, err = awsconf.Load(ctx, awsconf.Options{
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Profile:   cfg.AWS.Profile,
		})
		if err != nil {
			return nil, err
		}
	}

	stores := buildstate.Stores{Redis: a.Redis, DB: a.DB, DynamoTable: cfg.Build.DynamoTable}
	if cfg.Build.StateBackend == buildstate.BackendDynamoDB {
		stores.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	state, orders, err := buildstate.Open(cfg.Build.StateBackend, stores)
	if err != nil {
		return nil, err
	}

	rawA, rawB, output := a.tables()
	events := a.events()
	lock := distlock.NewLock(a.Redis, a.DB, BuildLockKey, cfg.Build.LockTTL())

	var src exclusion.Source
	if a.DB != nil {
		a.Banned = banned.NewService(postgres.NewBannedRepo(a.DB))
		src = a.Banned
	} else {
		a.Log.Warn("no database configured, builds run without a banned-customer list")
	}
	a.BannedCache = exclusion.NewCache(src)

	builder := cleanmaster.New(cleanmaster.Deps{
		RawA:     rawA,
		RawB:     rawB,
		Output:   output,
		State:    state,
		Orders:   orders,
		Lock:     lock,
		Banned:   a.BannedCache,
		Products: exclusion.NewProductRules(cfg.Exclusion.BannedProductKeywords),
		Renewal: exclusion.RenewalRule{
			Year:          cfg.Exclusion.Renewal.Year,
			Jurisdictions: cfg.Exclusion.Renewal.Jurisdictions,
			Entities:      cfg.Exclusion.Renewal.Entities,
			RenewalStems:  cfg.Exclusion.Renewal.RenewalStems,
		},
		Events:  events,
		Metrics: a.Metrics,
		Log:     a.Log,
	}, cleanmaster.Options{
		ChunkSize: cfg.Build.ChunkSize,
		SoftLimit: cfg.Build.SoftLimit(),
		LockWait:  cfg.Build.LockWait(),
	})

	a.Pipeline = &pipeline.Pipeline{
		Builder: builder,
		Backfill: &backfill.OrderDates{
			RawA:     rawA,
			RawB:     rawB,
			Output:   output,
			Lock:     lock,
			LockWait: cfg.Build.LockWait(),
			PageSize: cfg.Build.ChunkSize,
			Events:   events,
			Metrics:  a.Metrics,
			Log:      a.Log,
		},
		Importers: a.importers(rawA, rawB, events),
		Lookback:  time.Duration(cfg.Import.LookbackDays) * 24 * time.Hour,
		Output:    output,
		Log:       a.Log,
	}

	if cfg.Export.Enabled {
		a.S3 = s3.NewFromConfig(awsCfg)
		a.Pipeline.Exporter = export.NewS3Exporter(a.S3, cfg.Export.Bucket, cfg.Export.Prefix)
		a.Pipeline.ExportBucket = cfg.Export.Bucket
	}
	if cfg.Notify.Enabled {
		n := notify.NewSESNotifier(sesv2.NewFromConfig(awsCfg), notify.Config{
			From:    cfg.Notify.From,
			To:      cfg.Notify.To,
			Subject: cfg.Notify.Subject,
			Body:    cfg.Notify.Body,
		})
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("notify templates: %w", err)
		}
		a.Pipeline.Notifier = n
	}

	a.Log.Info("components wired",
		"state_backend", cfg.Build.StateBackend,
		"tables", tableBackend(a.DB),
		"importers", len(a.Pipeline.Importers),
		"export", cfg.Export.Enabled,
		"notify", cfg.Notify.Enabled,
	)
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// tables returns Postgres-backed stores, or in-memory ones when no database
// is configured.
func (a *App) tables() (rawA, rawB, output sheet.WritableTable) {
	names := a.Config.Sheets
	if a.DB == nil {
		a.Log.Warn("no database configured, using in-memory tables")
		return sheet.NewMemoryTable(names.RawA, nil),
			sheet.NewMemoryTable(names.RawB, nil),
			sheet.NewMemoryTable(names.CleanMaster, domain.CanonicalHeader)
	}
	return sheet.NewPostgresTable(a.DB, names.RawA),
		sheet.NewPostgresTable(a.DB, names.RawB),
		sheet.NewPostgresTable(a.DB, names.CleanMaster)
}

func (a *App) events() eventlog.Sink {
	sinks := eventlog.Multi{eventlog.NewLoggerSink(a.Log)}
	if a.DB != nil {
		sinks = append(sinks, eventlog.NewPostgresSink(a.DB))
	}
	return sinks
}

func (a *App) importers(rawA, rawB sheet.WritableTable, events eventlog.Sink) map[domain.Platform]pipeline.Importer {
	cfg := a.Config
	out := make(map[domain.Platform]pipeline.Importer)
	if cfg.PlatformA.Enabled {
		out[domain.PlatformA] = &importer.Importer{
			Source: importer.NewPlatformAClient(importer.PlatformAConfig{
				BaseURL:      cfg.PlatformA.BaseURL,
				APIKey:       cfg.PlatformA.APIKey,
				PageSize:     cfg.PlatformA.PageSize,
				TokenURL:     cfg.PlatformA.TokenURL,
				ClientID:     cfg.PlatformA.ClientID,
				ClientSecret: cfg.PlatformA.ClientSecret,
				Scopes:       cfg.PlatformA.Scopes,
			}),
			Table: rawA, Events: events, Metrics: a.Metrics, Log: a.Log,
		}
	}
	if cfg.PlatformB.Enabled {
		out[domain.PlatformB] = &importer.Importer{
			Source: importer.NewPlatformBClient(importer.PlatformBConfig{
				BaseURL:     cfg.PlatformB.BaseURL,
				AccessToken: cfg.PlatformB.AccessToken,
				PageSize:    cfg.PlatformB.PageSize,
			}),
			Table: rawB, Events: events, Metrics: a.Metrics, Log: a.Log,
		}
	}
	return out
}

// openDatabase opens Postgres with short connect and statement timeouts.
func openDatabase(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	dsn := c.URL
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "connect_timeout") {
		dsn += sep + "connect_timeout=5"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.Addr, err)
	}
	return client, nil
}

func tableBackend(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}
