package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const driverName = "postgres"

// PostgresPGXPoolConfig creates a pgxpool.Config for dsn with the pool limits of db.
func PostgresPGXPoolConfig(db Database, dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}

	poolConfig.MaxConns = int32(db.MaxConns) //nolint:gosec
	poolConfig.MinConns = int32(db.MinConns) //nolint:gosec
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = db.ConnectTimeout

	return poolConfig, nil
}

// PostgresPGXPool opens and pings a pgx pool.
func PostgresPGXPool(ctx context.Context, db Database, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := PostgresPGXPoolConfig(db, dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// PostgresSQLDB opens and pings a database/sql handle on lib/pq.
func PostgresSQLDB(ctx context.Context, db Database, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configureSQLDB(sqlDB, db)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqlDB, nil
}

// PostgresSQLX opens and pings a sqlx handle on lib/pq.
func PostgresSQLX(ctx context.Context, db Database, dsn string) (*sqlx.DB, error) {
	sqlxDB, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configureSQLDB(sqlxDB.DB, db)

	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqlxDB, nil
}

func configureSQLDB(sqlDB *sql.DB, db Database) {
	sqlDB.SetMaxOpenConns(db.MaxConns)
	sqlDB.SetMaxIdleConns(db.MinConns)
	sqlDB.SetConnMaxLifetime(db.MaxConnLifetime)
	sqlDB.SetConnMaxIdleTime(db.MaxConnIdleTime)
}
