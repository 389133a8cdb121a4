package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// CreateChat creates a new session.
// POST /api/chat
func (h *Handler) CreateChat(c echo.Context) error {
	var req domain.CreateSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body")
		}
	}

	session, err := h.service.CreateSession(c.Request().Context(), auth.OwnerID(c), req.Title)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusCreated, "Chat created successfully", session)
}

// ListChats returns a page of the caller's sessions.
// GET /api/chat?page=1&limit=10
func (h *Handler) ListChats(c echo.Context) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", domain.DefaultPageLimit)

	result, err := h.service.ListSessions(c.Request().Context(), auth.OwnerID(c), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Chat history retrieved successfully", result)
}

// GetChat returns one session with its turns.
// GET /api/chat/:id
func (h *Handler) GetChat(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("id"), auth.OwnerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Chat retrieved successfully", session)
}

// SendMessage appends a user message and the assistant's reply.
// POST /api/chat/:id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.service.SendMessage(c.Request().Context(), c.Param("id"), auth.OwnerID(c), req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Message sent successfully", result)
}

// DeleteChat soft-deletes a session.
// DELETE /api/chat/:id
func (h *Handler) DeleteChat(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), c.Param("id"), auth.OwnerID(c)); err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Chat deleted successfully", nil)
}

// GetStats returns the caller's usage rollup.
// GET /api/chat/stats
func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context(), auth.OwnerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Chat statistics retrieved successfully", stats)
}

// queryInt parses a query parameter; missing, malformed, or zero values
// fall back to def.
func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v == 0 {
		return def
	}
	return v
}
