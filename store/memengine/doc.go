// Package memengine is an in-process implementation of store.Store.
//
// Writes made inside a unit are staged on the Tx and applied under the store mutex on
// commit, so a failed or canceled unit leaves nothing behind. LockCopy and LockMember take
// per-row locks that are released after commit or rollback; units touching different rows
// never wait for each other. Uniqueness rules mirror the PostgreSQL schema and are checked
// at commit.
package memengine
