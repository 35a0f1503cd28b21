// Package fixtures seeds tenants, members, catalog entries and copies into any store.Store
// for tests. Every helper fails the test on error.
package fixtures
