// Package adapters hides the differences between pgx, database/sql and sqlx behind one small
// transaction interface so the engine builds and runs the same SQL on all three.
package adapters
