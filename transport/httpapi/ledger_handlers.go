package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/ledger"
)

func registerLedgerRoutes(r gin.IRoutes, s *server) {
	r.DELETE("/copies/:copy_id", s.softDelete(core.EntityCopy, "copy_id"))
	r.POST("/copies/:copy_id/restore", s.restore(core.EntityCopy, "copy_id"))
	r.DELETE("/members/:member_id", s.softDelete(core.EntityMember, "member_id"))
	r.POST("/members/:member_id/restore", s.restore(core.EntityMember, "member_id"))
	r.DELETE("/staff/:staff_id", s.softDelete(core.EntityStaff, "staff_id"))
	r.POST("/staff/:staff_id/restore", s.restore(core.EntityStaff, "staff_id"))
}

func (s *server) softDelete(kind core.EntityKind, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := s.ledgerRequest(c, kind, param)
		if !ok {
			return
		}

		result, err := s.services.Ledger.SoftDelete(c.Request.Context(), req)
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, changedDTO{Changed: !result.Idempotent})
	}
}

func (s *server) restore(kind core.EntityKind, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := s.ledgerRequest(c, kind, param)
		if !ok {
			return
		}

		result, err := s.services.Ledger.Restore(c.Request.Context(), req)
		if err != nil {
			s.abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, changedDTO{Changed: !result.Idempotent})
	}
}

func (s *server) ledgerRequest(c *gin.Context, kind core.EntityKind, param string) (ledger.Request, bool) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return ledger.Request{}, false
	}

	id, ok := s.pathUUID(c, param)
	if !ok {
		return ledger.Request{}, false
	}

	return ledger.Request{
		LibraryID:    libraryID,
		Kind:         kind,
		ID:           id,
		ActingUserID: actingUser(c),
	}, true
}
