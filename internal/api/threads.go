package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/threadline/internal/api/auth"
	"github.com/threadline/internal/thread"
	"github.com/threadline/pkg/models"
)

// threadPageResponse is one flat page of a subject's thread. Clients merge
// pages and rebuild the tree locally; the server never ships nested JSON.
type threadPageResponse struct {
	Data        []*models.ThreadNode `json:"data"`
	Total       int                  `json:"total"`
	CurrentPage int                  `json:"current_page"`
	PerPage     int                  `json:"per_page"`
	LastPage    int                  `json:"last_page"`
}

// createNode handles POST /api/v1/threads/:subjectId/nodes.
func (s *Server) createNode(c echo.Context) error {
	subjectID, err := strconv.ParseInt(c.Param("subjectId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid subject ID")
	}

	var req thread.CreateNodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	node, err := s.threads.CreateNode(c.Request().Context(), subjectID, auth.GetUser(c), req)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, node)
}

// listNodes handles GET /api/v1/threads/:subjectId/nodes.
func (s *Server) listNodes(c echo.Context) error {
	subjectID, err := strconv.ParseInt(c.Param("subjectId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid subject ID")
	}

	page, perPage := pagination(c, s.threadPageSize)

	nodes, total, err := s.threads.ListPage(c.Request().Context(), subjectID, page, perPage)
	if err != nil {
		return httpError(err)
	}

	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	return c.JSON(http.StatusOK, threadPageResponse{
		Data:        nodes,
		Total:       total,
		CurrentPage: page,
		PerPage:     perPage,
		LastPage:    lastPage,
	})
}

// updateNode handles PUT /api/v1/nodes/:id.
func (s *Server) updateNode(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid node ID")
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	node, err := s.threads.UpdateNode(c.Request().Context(), id, auth.GetUser(c), req.Text)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, node)
}

// deleteNode handles DELETE /api/v1/nodes/:id.
func (s *Server) deleteNode(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid node ID")
	}

	if err := s.threads.DeleteNode(c.Request().Context(), id, auth.GetUser(c)); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// pagination reads page/per_page query params with sane bounds.
func pagination(c echo.Context, defaultPerPage int) (page, perPage int) {
	page = 1
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		page = v
	}

	perPage = defaultPerPage
	if v, err := strconv.Atoi(c.QueryParam("per_page")); err == nil && v > 0 && v <= 100 {
		perPage = v
	}
	return page, perPage
}
