package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/circulation-core/inventory"
)

func registerInventoryRoutes(r gin.IRoutes, s *server) {
	r.POST("/copies", s.registerCopy)
	r.GET("/copies", s.listCopies)
	r.GET("/copies/:copy_id", s.getCopy)
	r.PUT("/copies/:copy_id/details", s.updateCopyDetails)
	r.PUT("/copies/:copy_id/status", s.setLifecycleStatus)
}

// POST /libraries/:library_id/copies
func (s *server) registerCopy(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req registerCopyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	bookCopy, err := s.services.Inventory.RegisterCopy(c.Request.Context(), inventory.RegisterCopyRequest{
		LibraryID:    libraryID,
		EditionID:    req.EditionID,
		CopyNumber:   req.CopyNumber,
		Location:     req.Location,
		Condition:    req.Condition,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Location", "/api/v1/libraries/"+libraryID.String()+"/copies/"+bookCopy.ID.String())
	c.JSON(http.StatusCreated, toCopyDTO(bookCopy))
}

// GET /libraries/:library_id/copies?limit=&offset=
func (s *server) listCopies(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	page, ok := s.queryPage(c)
	if !ok {
		return
	}

	copies, err := s.services.Inventory.ListCopies(c.Request.Context(), libraryID, actingUser(c), page)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCopyDTOs(copies))
}

// GET /libraries/:library_id/copies/:copy_id
func (s *server) getCopy(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	copyID, ok := s.pathUUID(c, "copy_id")
	if !ok {
		return
	}

	bookCopy, err := s.services.Inventory.GetCopy(c.Request.Context(), libraryID, copyID, actingUser(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCopyDTO(bookCopy))
}

// PUT /libraries/:library_id/copies/:copy_id/details
func (s *server) updateCopyDetails(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	copyID, ok := s.pathUUID(c, "copy_id")
	if !ok {
		return
	}

	var req copyDetailsRequest
	if !s.bindJSON(c, &req) {
		return
	}

	bookCopy, err := s.services.Inventory.UpdateCopyDetails(c.Request.Context(), inventory.UpdateCopyDetailsRequest{
		LibraryID:    libraryID,
		CopyID:       copyID,
		Location:     req.Location,
		Condition:    req.Condition,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCopyDTO(bookCopy))
}

// PUT /libraries/:library_id/copies/:copy_id/status
func (s *server) setLifecycleStatus(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	copyID, ok := s.pathUUID(c, "copy_id")
	if !ok {
		return
	}

	var req lifecycleStatusRequest
	if !s.bindJSON(c, &req) {
		return
	}

	bookCopy, err := s.services.Inventory.SetLifecycleStatus(c.Request.Context(), inventory.SetLifecycleStatusRequest{
		LibraryID:    libraryID,
		CopyID:       copyID,
		Status:       req.Status,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCopyDTO(bookCopy))
}
