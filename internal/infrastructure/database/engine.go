package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	crerr "github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/riskibarqy/wellness-api/internal/platform/dburl"
	"github.com/riskibarqy/wellness-api/internal/platform/logging"
	"github.com/riskibarqy/wellness-api/internal/platform/resilience"
)

const (
	DriverPGX = "pgx"
	DriverPQ  = "postgres"

	dbSystem = "postgresql"
)

var ErrUnsupportedDriver = crerr.New("database: unsupported driver scheme")

var tracer = otel.Tracer("wellness-api/internal/infrastructure/database")

// Engine is the process-wide connection pool. Build it once at start-up and
// pass it to whatever needs the database.
type Engine struct {
	db     *sqlx.DB
	driver string
	url    dburl.ConnectionURL
	ssl    string
	probe  *resilience.Probe
	logger *logging.Logger
}

// Open normalizes opts.URL, opens the matching driver and pings it.
// URLs for the async driver go through pgx with the ssl connect argument
// applied; every other postgres URL goes to lib/pq unchanged.
func Open(ctx context.Context, opts Options, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts = opts.withDefaults()

	ctx, span := tracer.Start(ctx, "database.Open")
	defer span.End()

	sanitized, args, err := dburl.PrepareEngineArguments(opts.URL, dburl.WithRootCAs(opts.RootCAs))
	if err != nil {
		span.SetStatus(codes.Error, "invalid database url")
		return nil, crerr.Wrap(err, "prepare database url")
	}
	parsed, err := dburl.Parse(sanitized)
	if err != nil {
		return nil, crerr.Wrap(err, "parse sanitized database url")
	}

	engine := &Engine{
		url:    parsed,
		ssl:    sslSummary(args),
		logger: logger.Named("database"),
	}

	if dburl.IsAsyncDriver(parsed.Scheme) {
		engine.driver = DriverPGX
		engine.db, err = openPGX(sanitized, args, parsed.Database)
	} else {
		engine.driver = DriverPQ
		engine.db, err = openPQ(sanitized, parsed.Database)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open database")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("db.driver", engine.driver),
		attribute.String("db.ssl", engine.ssl),
	)

	engine.probe = resilience.NewProbe("database", opts.Probe, opts.ConnectTimeout, engine.ping)

	engine.db.SetMaxOpenConns(opts.MaxOpenConns)
	engine.db.SetMaxIdleConns(opts.MaxIdleConns)
	engine.db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := engine.db.PingContext(pingCtx); err != nil {
		_ = engine.db.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ping database")
		return nil, crerr.Wrapf(err, "ping database %s", parsed.Redacted())
	}

	engine.logger.InfoContext(ctx, "database connected",
		"url", parsed,
		"driver", engine.driver,
		"ssl", engine.ssl,
		"max_open_conns", opts.MaxOpenConns,
	)

	return engine, nil
}

func openPGX(sanitized string, args dburl.ConnectArgs, dbName string) (*sqlx.DB, error) {
	connConfig, err := pgxConfig(sanitized, args)
	if err != nil {
		return nil, err
	}

	db := otelsql.OpenDB(stdlib.GetConnector(*connConfig), otelOptions(dbName)...)
	otelsql.ReportDBStatsMetrics(db, otelOptions(dbName)...)
	return sqlx.NewDb(db, DriverPGX), nil
}

func openPQ(raw, dbName string) (*sqlx.DB, error) {
	dsn, err := dburl.SyncDriverURL(raw)
	if err != nil {
		return nil, crerr.Wrap(err, "prepare lib/pq url")
	}
	scheme, _, _ := strings.Cut(dsn, ":")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
	default:
		return nil, crerr.Wrapf(ErrUnsupportedDriver, "scheme %q", scheme)
	}

	db, err := otelsqlx.Open(DriverPQ, dsn, otelOptions(dbName)...)
	if err != nil {
		return nil, crerr.Wrap(err, "open lib/pq database")
	}
	otelsql.ReportDBStatsMetrics(db.DB, otelOptions(dbName)...)
	return db, nil
}

// pgxConfig parses the sanitized DSN and applies the ssl connect argument.
// Without one, pgx keeps its own default (prefer).
func pgxConfig(sanitized string, args dburl.ConnectArgs) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(dburl.DriverDSN(sanitized))
	if err != nil {
		return nil, crerr.Wrap(err, "parse pgx config")
	}
	applySSL(connConfig, args.SSL)
	return connConfig, nil
}

func applySSL(connConfig *pgx.ConnConfig, ssl *dburl.SSLSetting) {
	if ssl == nil {
		return
	}

	connConfig.Fallbacks = nil
	switch {
	case !ssl.Enabled:
		connConfig.TLSConfig = nil
	case ssl.Context != nil:
		connConfig.TLSConfig = ssl.Context.Config(connConfig.Host)
	default:
		connConfig.TLSConfig = &tls.Config{
			ServerName: connConfig.Host,
			MinVersion: tls.VersionTLS12,
		}
	}
}

func otelOptions(dbName string) []otelsql.Option {
	return []otelsql.Option{
		otelsql.WithDBSystem(dbSystem),
		otelsql.WithDBName(dbName),
		otelsql.WithQueryFormatter(formatQueryForTrace),
	}
}

func sslSummary(args dburl.ConnectArgs) string {
	if args.SSL == nil {
		return "driver-default"
	}
	return args.SSL.String()
}

func (e *Engine) DB() *sqlx.DB {
	return e.db
}

func (e *Engine) Driver() string {
	return e.driver
}

// URL is the sanitized connection URL. Log it, it redacts itself.
func (e *Engine) URL() dburl.ConnectionURL {
	return e.url
}

// Ping checks the pool through the probe guard. Concurrent callers share one
// round trip and an unreachable database fails fast until the breaker
// half-opens again.
func (e *Engine) Ping(ctx context.Context) error {
	return e.probe.Run(ctx)
}

func (e *Engine) ProbeState() string {
	return string(e.probe.State())
}

func (e *Engine) ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "database.Ping")
	defer span.End()

	if err := e.db.PingContext(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ping database")
		return crerr.Wrap(err, "ping database")
	}
	return nil
}

func (e *Engine) Stats() sql.DBStats {
	return e.db.Stats()
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return crerr.Wrap(err, "close database")
	}
	e.logger.Info("database closed", "url", e.url)
	return nil
}
