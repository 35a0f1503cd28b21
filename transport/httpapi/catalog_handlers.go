package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/store"
)

// GET /catalog/editions?title=&language=&author_id=&limit=&offset=
func (s *server) listEditions(c *gin.Context) {
	filter := core.EditionFilter{
		TitlePrefix: c.Query("title"),
		Language:    c.Query("language"),
	}

	if v := c.Query("author_id"); v != "" {
		authorID, err := uuid.Parse(v)
		if err != nil {
			s.badRequest(c, "invalid author_id")
			return
		}

		filter.AuthorID = authorID
	}

	page, ok := s.queryPage(c)
	if !ok {
		return
	}

	filter.Limit, filter.Offset = page.Limit, page.Offset

	editions, err := s.services.Catalog.ListEditions(c.Request.Context(), filter)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEditionDTOs(editions))
}

// GET /catalog/editions/:edition_id
func (s *server) getEdition(c *gin.Context) {
	editionID, ok := s.pathUUID(c, "edition_id")
	if !ok {
		return
	}

	edition, err := s.services.Catalog.GetEdition(c.Request.Context(), editionID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEditionDTO(edition))
}

// GET /catalog/isbn/:isbn
func (s *server) findEditionByISBN(c *gin.Context) {
	edition, err := s.services.Catalog.FindEditionByISBN(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEditionDTO(edition))
}

// GET /catalog/authors/:author_id
func (s *server) getAuthor(c *gin.Context) {
	authorID, ok := s.pathUUID(c, "author_id")
	if !ok {
		return
	}

	author, err := s.services.Catalog.GetAuthor(c.Request.Context(), authorID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAuthorDTO(author))
}

// PUT /catalog/editions
func (s *server) saveEdition(c *gin.Context) {
	var req editionRequest
	if !s.bindJSON(c, &req) {
		return
	}

	edition, err := s.services.Catalog.SaveEdition(c.Request.Context(), catalog.EditionRequest{
		ID:              req.ID,
		ISBN:            req.ISBN,
		Title:           req.Title,
		Subtitle:        req.Subtitle,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Language:        req.Language,
		PageCount:       req.PageCount,
		AuthorIDs:       req.AuthorIDs,
		ActingUserID:    actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toEditionDTO(edition))
}

// PUT /catalog/authors
func (s *server) saveAuthor(c *gin.Context) {
	var req authorRequest
	if !s.bindJSON(c, &req) {
		return
	}

	author, err := s.services.Catalog.SaveAuthor(c.Request.Context(), catalog.AuthorRequest{
		ID:           req.ID,
		Name:         req.Name,
		BirthYear:    req.BirthYear,
		ActingUserID: actingUser(c),
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAuthorDTO(author))
}

// queryPage reads limit and offset. Absent values leave the store defaults in place.
func (s *server) queryPage(c *gin.Context) (store.Page, bool) {
	var page store.Page

	for name, target := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		v := c.Query(name)
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(c, "invalid "+name)
			return store.Page{}, false
		}

		*target = n
	}

	return page, true
}
