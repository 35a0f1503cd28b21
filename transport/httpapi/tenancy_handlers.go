package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/tenancy"
)

func registerTenancyRoutes(r gin.IRoutes, s *server) {
	r.GET("", s.getLibrary)
	r.PUT("/settings", s.updateSettings)
	r.POST("/staff", s.addStaff)
	r.PUT("/staff/:staff_id/role", s.changeStaffRole)
	r.POST("/members", s.registerMember)
	r.GET("/members/:member_id", s.getMember)
	r.PUT("/members/:member_id/status", s.setMemberStatus)
}

// POST /libraries
func (s *server) createLibrary(c *gin.Context) {
	var req createLibraryRequest
	if !s.bindJSON(c, &req) {
		return
	}

	library, err := s.services.Tenancy.CreateLibrary(c.Request.Context(), tenancy.CreateLibraryRequest{
		Code:         req.Code,
		Name:         req.Name,
		Settings:     req.Settings,
		OwnerUserID:  req.OwnerUserID,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Location", "/api/v1/libraries/"+library.ID.String())
	c.JSON(http.StatusCreated, toLibraryDTO(library))
}

// GET /libraries/:library_id
func (s *server) getLibrary(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	library, err := s.services.Tenancy.GetLibrary(c.Request.Context(), libraryID, actingUser(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLibraryDTO(library))
}

// PUT /libraries/:library_id/settings
func (s *server) updateSettings(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var settings core.LibrarySettings
	if !s.bindJSON(c, &settings) {
		return
	}

	library, err := s.services.Tenancy.UpdateSettings(c.Request.Context(), tenancy.UpdateSettingsRequest{
		LibraryID:    libraryID,
		Settings:     settings,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLibraryDTO(library))
}

// POST /libraries/:library_id/staff
func (s *server) addStaff(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req addStaffRequest
	if !s.bindJSON(c, &req) {
		return
	}

	staff, err := s.services.Tenancy.AddStaff(c.Request.Context(), tenancy.AddStaffRequest{
		LibraryID:    libraryID,
		UserID:       req.UserID,
		Role:         req.Role,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toStaffDTO(staff))
}

// PUT /libraries/:library_id/staff/:staff_id/role
func (s *server) changeStaffRole(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	staffID, ok := s.pathUUID(c, "staff_id")
	if !ok {
		return
	}

	var req changeRoleRequest
	if !s.bindJSON(c, &req) {
		return
	}

	staff, err := s.services.Tenancy.ChangeStaffRole(c.Request.Context(), tenancy.ChangeStaffRoleRequest{
		LibraryID:    libraryID,
		StaffID:      staffID,
		Role:         req.Role,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStaffDTO(staff))
}

// POST /libraries/:library_id/members
func (s *server) registerMember(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	var req registerMemberRequest
	if !s.bindJSON(c, &req) {
		return
	}

	var until time.Time
	if req.MembershipUntil != nil {
		until = *req.MembershipUntil
	}

	member, err := s.services.Tenancy.RegisterMember(c.Request.Context(), tenancy.RegisterMemberRequest{
		LibraryID:       libraryID,
		MemberNumber:    req.MemberNumber,
		FullName:        req.FullName,
		Email:           req.Email,
		MembershipUntil: until,
		ActingUserID:    actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Location", "/api/v1/libraries/"+libraryID.String()+"/members/"+member.ID.String())
	c.JSON(http.StatusCreated, toMemberDTO(member))
}

// GET /libraries/:library_id/members/:member_id
func (s *server) getMember(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	memberID, ok := s.pathUUID(c, "member_id")
	if !ok {
		return
	}

	member, err := s.services.Tenancy.GetMember(c.Request.Context(), libraryID, memberID, actingUser(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMemberDTO(member))
}

// PUT /libraries/:library_id/members/:member_id/status
func (s *server) setMemberStatus(c *gin.Context) {
	libraryID, ok := s.pathUUID(c, "library_id")
	if !ok {
		return
	}

	memberID, ok := s.pathUUID(c, "member_id")
	if !ok {
		return
	}

	var req memberStatusRequest
	if !s.bindJSON(c, &req) {
		return
	}

	member, err := s.services.Tenancy.SetMemberStatus(c.Request.Context(), tenancy.SetMemberStatusRequest{
		LibraryID:    libraryID,
		MemberID:     memberID,
		Status:       req.Status,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMemberDTO(member))
}
