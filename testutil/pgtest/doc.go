// Package pgtest opens PostgreSQL-backed stores for integration tests.
//
// Tests are skipped unless CIRCULATION_TEST_DSN is set. ADAPTER_TYPE selects the driver
// ("pgx.pool" by default, "sql.db" or "sqlx.db").
package pgtest
