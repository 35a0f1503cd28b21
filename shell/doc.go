// Package shell contains the imperative plumbing shared by the circulation services:
// retry with exponential backoff for lost copy-lock races, the dependency-free
// observability interfaces (logger, metrics, tracing) and helpers to record them.
package shell
