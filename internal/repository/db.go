// Package repository is the optional run store: it records OCR engine runs and
// export items in SQLite or Postgres, grouped by run ID.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// FromConfig maps the store section of the application config.
func FromConfig(c common.StoreConfig) Config {
	return Config{
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// Store is an open run store.
type Store struct {
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	dialect string
	logger  *slog.Logger
}

// IsPostgres reports whether dsn points at a Postgres server rather than a SQLite file.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the store named by cfg.DSN and creates the tables if missing.
// Postgres DSNs go through a pgx pool; anything else is a SQLite path.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, common.ConfigError("store dsn is required")
	}

	var (
		s   *Store
		err error
	)
	if IsPostgres(cfg.DSN) {
		s, err = openPostgres(ctx, cfg, logger)
	} else {
		s, err = openSQLite(cfg, logger)
	}
	if err != nil {
		logger.Error("failed to connect to run store", "error", err)
		return nil, wrapDB("open run store", err)
	}

	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, wrapDB("create run store tables", err)
	}
	logger.Info("successfully connected to run store", "dialect", s.dialect)
	return s, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	logger.Info("connecting to database", "dialect", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "ocr-fusion"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	// Wrap pool as *sql.DB for the ent driver
	db := stdlib.OpenDBFromPool(pool)
	return &Store{
		drv:     entsql.OpenDB(dialect.Postgres, db),
		pool:    pool,
		dialect: dialect.Postgres,
		logger:  logger,
	}, nil
}

func openSQLite(cfg Config, logger *slog.Logger) (*Store, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite://")
	logger.Info("opening database", "dialect", dialect.SQLite, "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps in-memory databases shared and writes serialized
	db.SetMaxOpenConns(1)
	return &Store{
		drv:     entsql.OpenDB(dialect.SQLite, db),
		dialect: dialect.SQLite,
		logger:  logger,
	}, nil
}

// Dialect returns the ent dialect name of the store.
func (s *Store) Dialect() string { return s.dialect }

// Close closes the database connections gracefully
func (s *Store) Close() {
	s.logger.Info("closing database connections")
	if err := s.drv.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Info("database connections closed")
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	s.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if s.pool != nil {
		err = s.pool.Ping(ctx)
	} else {
		err = s.drv.DB().PingContext(ctx)
	}
	if err != nil {
		return wrapDB("ping run store", err)
	}
	s.logger.Debug("database ping successful")
	return nil
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *Store) migrate(ctx context.Context) error {
	tables := []*entsql.TableBuilder{
		s.builder().CreateTable(tableEngineRun).IfNotExists().
			Columns(
				entsql.Column("id").Type("varchar(36)"),
				entsql.Column("run_id").Type("varchar(36)").Attr("NOT NULL"),
				entsql.Column("ts").Type("varchar(32)").Attr("NOT NULL"),
				entsql.Column("source_path").Type("text").Attr("NOT NULL"),
				entsql.Column("source_sha256").Type("varchar(64)"),
				entsql.Column("engine").Type("varchar(32)").Attr("NOT NULL"),
				entsql.Column("engine_version").Type("text"),
				entsql.Column("device").Type("varchar(16)"),
				entsql.Column("lang").Type("varchar(64)"),
				entsql.Column("oem").Type("integer"),
				entsql.Column("psm").Type("integer"),
				entsql.Column("format").Type("varchar(16)"),
				entsql.Column("available").Type("boolean").Attr("NOT NULL"),
				entsql.Column("exit_code").Type("integer").Attr("NOT NULL"),
				entsql.Column("duration_sec").Type("double precision").Attr("NOT NULL"),
				entsql.Column("stderr").Type("text"),
				entsql.Column("out_path").Type("text"),
				entsql.Column("notes").Type("text"),
			).
			PrimaryKey("id"),
		s.builder().CreateTable(tableExportItem).IfNotExists().
			Columns(
				entsql.Column("run_id").Type("varchar(36)").Attr("NOT NULL"),
				entsql.Column("doc_id").Type("varchar(255)").Attr("NOT NULL"),
				entsql.Column("source_image").Type("text").Attr("NOT NULL"),
				entsql.Column("num_candidates").Type("integer").Attr("NOT NULL"),
				entsql.Column("has_curator").Type("boolean").Attr("NOT NULL"),
				entsql.Column("cer").Type("double precision").Attr("NOT NULL"),
				entsql.Column("wer").Type("double precision").Attr("NOT NULL"),
				entsql.Column("curator_len").Type("integer").Attr("NOT NULL"),
				entsql.Column("input_len").Type("integer").Attr("NOT NULL"),
				entsql.Column("candidates_present").Type("text"),
				entsql.Column("multi_hyp_mode").Type("varchar(16)").Attr("NOT NULL"),
				entsql.Column("selected_candidates").Type("text"),
			).
			PrimaryKey("run_id", "doc_id"),
	}
	for _, t := range tables {
		query, args := t.Query()
		if err := s.drv.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("%s: %w", query, err)
		}
	}
	return nil
}

// insertBatch is the number of rows per INSERT statement.
const insertBatch = 200

// insertRows writes rows into table inside one transaction.
func (s *Store) insertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		ins := s.builder().Insert(table).Columns(columns...)
		for _, r := range rows[start:end] {
			ins.Values(r...)
		}
		query, args := ins.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func wrapDB(op string, err error) error {
	return common.NewAppError(common.CodeDatabase, op, fmt.Errorf("%w: %w", common.ErrDatabase, err))
}
