package sink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/grantscope/harvester/internal/harvest"
)

var jsonSink = jsoniter.ConfigCompatibleWithStandardLibrary

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool behind the sink.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres upserts records by (source_url, title) so re-harvesting a source
// refreshes rows instead of duplicating them.
type Postgres struct {
	pool  execCloser
	table string
}

// NewPostgres connects a pool and returns the sink.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "grant_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// NewPostgresWithPool constructs a sink from an existing pool (primarily for
// testing).
func NewPostgresWithPool(pool execCloser, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "grant_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Store implements RecordSink.
func (s *Postgres) Store(ctx context.Context, records []harvest.RawGrantData) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	for _, record := range records {
		if err := s.upsert(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) upsert(ctx context.Context, record harvest.RawGrantData) error {
	if record.Title == "" {
		return fmt.Errorf("record title is required")
	}
	rawJSON, err := jsonSink.Marshal(record.RawContent)
	if err != nil {
		return fmt.Errorf("marshal raw content: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	title,
	description,
	deadline,
	funding_amount,
	eligibility,
	application_url,
	funder_name,
	source_url,
	scraped_at,
	raw_content
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source_url, title) DO UPDATE SET
	description = EXCLUDED.description,
	deadline = EXCLUDED.deadline,
	funding_amount = EXCLUDED.funding_amount,
	eligibility = EXCLUDED.eligibility,
	application_url = EXCLUDED.application_url,
	funder_name = EXCLUDED.funder_name,
	scraped_at = EXCLUDED.scraped_at,
	raw_content = EXCLUDED.raw_content`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		record.Title,
		record.Description,
		record.Deadline,
		record.FundingAmount,
		record.Eligibility,
		record.ApplicationURL,
		record.FunderName,
		record.SourceURL,
		record.ScrapedAt,
		rawJSON,
	); err != nil {
		return fmt.Errorf("upsert record %q: %w", record.Title, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
