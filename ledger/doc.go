// Package ledger soft-deletes and restores staff, members and copies.
//
// Rows are never removed. A deletion stamps is_deleted, deleted_at and deleted_by (the acting
// staff row, nil for the system identity) and runs its compensations in the same atomic unit:
// a copy or member cannot go while it is part of an open loan, and their queued holds are
// cancelled with an audit row each. Both directions are idempotent, and a restore brings back
// exactly the row that was deleted.
package ledger
