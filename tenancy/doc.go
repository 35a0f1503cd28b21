// Package tenancy administers the tenant rows: libraries, their staff and their members.
//
// Creating a library is reserved for the system identity; the named owner gets the first
// staff row. Staff changes invalidate the role cache of the affected user so a new role takes
// effect on the next request.
package tenancy
