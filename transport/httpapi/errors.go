package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/circulation-core/core"
)

// Code is the machine readable error code of a response body.
type Code string

const (
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeNotAuthorized          Code = "NOT_AUTHORIZED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeBusinessRule           Code = "BUSINESS_RULE_VIOLATION"
	CodeUnprocessable          Code = "UNPROCESSABLE"
	CodeTimeout                Code = "TIMEOUT"
	CodeInternal               Code = "INTERNAL"
)

// retryAfterSeconds is the hint sent with lost lock races.
const retryAfterSeconds = "1"

const messageInternal = "operation failed"

type errorDTO struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func errorBody(code Code, msg string) errorDTO {
	return errorDTO{Error: errorDetail{Code: code, Message: msg}}
}

// mapping pairs a sentinel with its response. The first match wins, so specific sentinels
// come before the generic ones they may be joined with.
type mapping struct {
	sentinel error
	status   int
	code     Code
	detailed bool
}

var mappings = []mapping{
	{core.ErrNotAuthorized, http.StatusForbidden, CodeNotAuthorized, false},
	{core.ErrTransactionNotFound, http.StatusNotFound, CodeNotFound, false},
	{core.ErrHoldNotFound, http.StatusNotFound, CodeNotFound, false},
	{core.ErrNotFound, http.StatusNotFound, CodeNotFound, false},
	{core.ErrInvalidInput, http.StatusUnprocessableEntity, CodeUnprocessable, true},
	{core.ErrConcurrentModification, http.StatusConflict, CodeConcurrentModification, false},
	{core.ErrCopyUnavailable, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrCapacityExceeded, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrRenewalLimitReached, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrAlreadyReturned, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrMemberIneligible, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrMemberHasOpenLoans, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrHoldAlreadyPlaced, http.StatusConflict, CodeBusinessRule, false},
	{core.ErrConflict, http.StatusConflict, CodeConflict, false},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout, false},
}

// ToHTTPStatus maps a service error to its response status.
func ToHTTPStatus(err error) int {
	if m, ok := lookup(err); ok {
		return m.status
	}

	return http.StatusInternalServerError
}

func lookup(err error) (mapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			return m, true
		}
	}

	return mapping{}, false
}

// errorFromErr builds the body for err. Only validation errors carry their full text; other
// messages are the sentinel text so driver details never leave the process.
func errorFromErr(err error) errorDTO {
	m, ok := lookup(err)
	if !ok {
		return errorBody(CodeInternal, messageInternal)
	}

	if m.detailed {
		return errorBody(m.code, err.Error())
	}

	return errorBody(m.code, m.sentinel.Error())
}

// abortWithError writes the error response for err and logs unexpected failures.
func (s *server) abortWithError(c *gin.Context, err error) {
	status := ToHTTPStatus(err)

	if errors.Is(err, core.ErrConcurrentModification) {
		c.Header("Retry-After", retryAfterSeconds)
	}

	if status >= http.StatusInternalServerError {
		s.logError(c, err)
	}

	c.AbortWithStatusJSON(status, errorFromErr(err))
}

func (s *server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, msg))
}
