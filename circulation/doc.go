// Package circulation creates and settles borrowing transactions.
//
// Every operation authorizes process_loans (view_reports for history) before touching state
// and then runs as one atomic unit: the copy row is locked first, then the member row, one
// inventory transition is applied, the transaction row is written and one audit event is
// appended. Lost lock races are retried with exponential backoff; anything else fails fast.
package circulation
