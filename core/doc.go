// Package core holds the domain types shared by every circulation component:
// tenants, staff, members, book copies, borrowing transactions, audit events and the
// shared catalog, together with the sentinel errors that form the error taxonomy.
//
// Types in this package carry no behaviour that needs storage. Invariants that can be
// checked on a single value are exposed as Validate methods.
package core
