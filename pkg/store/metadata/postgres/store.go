// Package postgres implements a metadata store on PostgreSQL.
//
// The uniqueness invariants are schema constraints:
//   - files_owner_filename_key: UNIQUE (owner_id, filename)
//   - files_owner_content_hash_key: partial UNIQUE (owner_id, content_hash)
//   - files_link_id_key: UNIQUE (link_id)
//
// Every mutation is a single statement, and unique violations are mapped to
// the metadata sentinel errors by constraint name.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/dittofiles/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresMetadataStoreConfig contains configuration for the PostgreSQL
// store.
type PostgresMetadataStoreConfig struct {
	// DSN is a postgres:// connection URL.
	DSN string `mapstructure:"dsn"`

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32 `mapstructure:"max_conns"`

	// ConnectTimeout bounds the initial connection and ping.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Migrate applies the embedded schema migrations on startup.
	Migrate bool `mapstructure:"migrate"`
}

// PostgresMetadataStore implements metadata.Store on a pgx connection pool.
type PostgresMetadataStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMetadataStore connects to PostgreSQL and, when configured,
// applies migrations.
func NewPostgresMetadataStore(ctx context.Context, config PostgresMetadataStoreConfig) (*PostgresMetadataStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres metadata store: dsn is required")
	}

	if config.Migrate {
		if err := Migrate(config.DSN); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}

	connectCtx := ctx
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	logger.Info("Postgres metadata store connected: host=%s database=%s",
		poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Database)

	return &PostgresMetadataStore{pool: pool}, nil
}

// Migrate applies the embedded migrations to the database at dsn.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(dsn))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Postgres migrations applied: version=%d dirty=%v", version, dirty)
	return nil
}

// migrationURL rewrites a postgres:// URL to the pgx5:// scheme the migrate
// driver registers.
func migrationURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}

// Healthcheck pings the database.
func (s *PostgresMetadataStore) Healthcheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresMetadataStore) Close() error {
	s.pool.Close()
	return nil
}
