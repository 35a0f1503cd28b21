// Package httpapi is the thin HTTP transport of the circulation core, built on gin.
//
// The caller identity is taken from the X-User-ID header, which the upstream identity provider
// sets after authenticating the request. Handlers translate JSON to service requests and map
// the core error taxonomy to status codes:
//
//	ErrNotAuthorized                      403
//	ErrNotFound, ErrTransactionNotFound   404
//	ErrInvalidInput                       422
//	business rule violations, ErrConflict 409
//	ErrConcurrentModification             409 with Retry-After
//	anything else                         500 with a generic message
//
// Usage:
//
//	router, err := httpapi.NewRouter(httpapi.Services{...}, httpapi.WithLogger(logger))
//	srv := &http.Server{Addr: ":8080", Handler: router}
package httpapi
