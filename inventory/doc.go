// Package inventory owns a book copy's availability and copy-count invariants.
//
// The transitions in this package are pure: they take a copy and return the next copy or
// a business error, and never touch storage. The circulation engine runs them inside an
// atomic unit while it holds the copy's row lock. Registry covers the direct staff edits
// (registration, location, condition, lifecycle status).
//
// Availability transitions:
//
//	available -> borrowed -> available            (checkout, return)
//	available -> on_hold -> borrowed              (hold, pickup checkout by the queue head)
//	borrowed  -> on_hold                          (return with a non-empty hold queue)
//	available/on_hold <-> maintenance             (lifecycle status leaves or re-enters active)
package inventory
