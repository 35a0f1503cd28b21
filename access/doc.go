// Package access resolves a user's role in a library and evaluates capabilities against
// the fixed role/capability table. It is the only place roles are looked up; callers
// authorize before they touch any state.
package access
