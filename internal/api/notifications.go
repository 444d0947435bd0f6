package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/threadline/internal/api/auth"
	"github.com/threadline/pkg/models"
)

// notificationPageResponse is one page of the recipient's inbox, newest
// first, with the unread counter piggybacked so clients refresh their badge
// without a second round trip. This endpoint doubles as the polling fallback
// for realtime delivery.
type notificationPageResponse struct {
	Data        []*models.Notification `json:"data"`
	Total       int                    `json:"total"`
	CurrentPage int                    `json:"current_page"`
	PerPage     int                    `json:"per_page"`
	UnreadCount int                    `json:"unread_count"`
}

// listNotifications handles GET /api/v1/notifications.
func (s *Server) listNotifications(c echo.Context) error {
	user := auth.GetUser(c)
	page, perPage := pagination(c, s.notificationPageSize)

	ctx := c.Request().Context()
	notifications, total, err := s.notifications.List(ctx, user.ID, page, perPage)
	if err != nil {
		return httpError(err)
	}

	unread, err := s.notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, notificationPageResponse{
		Data:        notifications,
		Total:       total,
		CurrentPage: page,
		PerPage:     perPage,
		UnreadCount: unread,
	})
}

// unreadCount handles GET /api/v1/notifications/unread_count.
func (s *Server) unreadCount(c echo.Context) error {
	user := auth.GetUser(c)

	count, err := s.notifications.UnreadCount(c.Request().Context(), user.ID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

// markNotificationRead handles PUT /api/v1/notifications/:id/read.
func (s *Server) markNotificationRead(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if err := s.notifications.MarkRead(c.Request().Context(), id, auth.GetUser(c).ID); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}
