package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/circulation-core/circulation"
	"github.com/AntonStoeckl/circulation-core/shell"
)

func registerCirculationRoutes(r gin.IRoutes, s *server) {
	r.POST("/checkouts", s.checkout)
	r.POST("/transactions/:transaction_id/return", s.returnCopy)
	r.POST("/transactions/:transaction_id/renew", s.renew)
	r.PUT("/transactions/:transaction_id/fees", s.adjustFees)
	r.GET("/transactions/:transaction_id/events", s.transactionHistory)
	r.POST("/holds", s.placeHold)
	r.DELETE("/copies/:copy_id/holds/:member_id", s.cancelHold)
	r.POST("/overdue-sweeps", s.markOverdue)
}

// createdUnlessIdempotent answers 201 for new rows and 200 for replays.
func createdUnlessIdempotent(result shell.HandlerResult) int {
	if result.Idempotent {
		return http.StatusOK
	}

	return http.StatusCreated
}

// POST /libraries/:library_id/checkouts
func (s *server) checkout(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req copyMemberRequest
	if !s.bindJSON(c, &req) {
		return
	}

	loan, result, err := s.services.Circulation.Checkout(c.Request.Context(), circulation.CheckoutRequest{
		LibraryID:    libraryID,
		CopyID:       req.CopyID,
		MemberID:     req.MemberID,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(createdUnlessIdempotent(result), toTransactionDTO(loan))
}

// POST /libraries/:library_id/transactions/:transaction_id/return
func (s *server) returnCopy(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	transactionID, ok := s.pathUUID(c, "transaction_id")
	if !ok {
		return
	}

	var req returnRequest
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}

	loan, _, err := s.services.Circulation.ReturnCopy(c.Request.Context(), circulation.ReturnRequest{
		LibraryID:          libraryID,
		TransactionID:      transactionID,
		ActingUserID:       actingUser(c),
		DamageFeeCents:     req.DamageFeeCents,
		ProcessingFeeCents: req.ProcessingFeeCents,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransactionDTO(loan))
}

// POST /libraries/:library_id/transactions/:transaction_id/renew
func (s *server) renew(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	transactionID, ok := s.pathUUID(c, "transaction_id")
	if !ok {
		return
	}

	loan, _, err := s.services.Circulation.Renew(c.Request.Context(), circulation.RenewRequest{
		LibraryID:     libraryID,
		TransactionID: transactionID,
		ActingUserID:  actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransactionDTO(loan))
}

// PUT /libraries/:library_id/transactions/:transaction_id/fees
func (s *server) adjustFees(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	transactionID, ok := s.pathUUID(c, "transaction_id")
	if !ok {
		return
	}

	var req adjustFeesRequest
	if !s.bindJSON(c, &req) {
		return
	}

	loan, _, err := s.services.Circulation.AdjustFees(c.Request.Context(), circulation.AdjustFeesRequest{
		LibraryID:          libraryID,
		TransactionID:      transactionID,
		ActingUserID:       actingUser(c),
		DamageFeeCents:     req.DamageFeeCents,
		ProcessingFeeCents: req.ProcessingFeeCents,
		Reason:             req.Reason,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransactionDTO(loan))
}

// GET /libraries/:library_id/transactions/:transaction_id/events
func (s *server) transactionHistory(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	transactionID, ok := s.pathUUID(c, "transaction_id")
	if !ok {
		return
	}

	events, err := s.services.Circulation.TransactionHistory(c.Request.Context(), libraryID, transactionID, actingUser(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	out, err := toEventDTOs(events)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// POST /libraries/:library_id/holds
func (s *server) placeHold(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req copyMemberRequest
	if !s.bindJSON(c, &req) {
		return
	}

	hold, result, err := s.services.Circulation.PlaceHold(c.Request.Context(), circulation.HoldRequest{
		LibraryID:    libraryID,
		CopyID:       req.CopyID,
		MemberID:     req.MemberID,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(createdUnlessIdempotent(result), toTransactionDTO(hold))
}

// DELETE /libraries/:library_id/copies/:copy_id/holds/:member_id
func (s *server) cancelHold(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	copyID, ok := s.pathUUID(c, "copy_id")
	if !ok {
		return
	}

	memberID, ok := s.pathUUID(c, "member_id")
	if !ok {
		return
	}

	hold, _, err := s.services.Circulation.CancelHold(c.Request.Context(), circulation.CancelHoldRequest{
		LibraryID:    libraryID,
		CopyID:       copyID,
		MemberID:     memberID,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransactionDTO(hold))
}

// POST /libraries/:library_id/overdue-sweeps
func (s *server) markOverdue(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req overdueSweepRequest
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}

	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	flagged, _, err := s.services.Circulation.MarkOverdue(c.Request.Context(), circulation.MarkOverdueRequest{
		LibraryID:    libraryID,
		ActingUserID: actingUser(c),
		AsOf:         asOf,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overdueSweepDTO{Flagged: flagged})
}
