package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/domain"
)

// URL builds the postgres:// URL shared by the audit pool and the migration
// runner. An empty ssl mode means "disable".
func URL(cfg domain.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// AuditDB is the connection pool behind the audit trail.
type AuditDB struct {
	Pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Open connects to the audit database and verifies it answers. Zero pool
// limits keep the pgxpool defaults.
func Open(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (*AuditDB, error) {
	poolConfig, err := pgxpool.ParseConfig(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing audit database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("opening audit pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reaching audit database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.WithFields(logrus.Fields{
		"host":      cfg.Host,
		"database":  cfg.Database,
		"max_conns": poolConfig.MaxConns,
	}).Info("Audit database connected")

	return &AuditDB{Pool: pool, logger: logger}, nil
}

// Ping reports whether the audit database still answers. It serves as the
// audit_database health check.
func (db *AuditDB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close releases every pooled connection.
func (db *AuditDB) Close() {
	if db.Pool == nil {
		return
	}
	db.Pool.Close()
	db.logger.Debug("Audit database pool closed")
}
