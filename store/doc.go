// Package store defines the persistence contract the circulation components run on.
//
// A Store hands out Tx values inside atomic units. Everything written through a Tx in
// one unit commits together or not at all. LockCopy and LockMember take exclusive row
// locks that are held until the unit ends; all engine operations lock the copy before
// they evaluate its availability and take member locks only after the copy lock.
//
// Engines: store/postgresengine (PostgreSQL via pgx, database/sql or sqlx) and
// store/memengine (in-process, used by tests and local runs).
package store
