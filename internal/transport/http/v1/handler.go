// Package v1 provides the chat API handlers.
package v1

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the chat routes on g. The group must already
// carry the auth middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateChat)
	g.GET("", h.ListChats)
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetChat)
	g.DELETE("/:id", h.DeleteChat)
	g.POST("/:id/messages", h.SendMessage)
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, domain.Envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, domain.Envelope{Success: false, Message: message})
}

// respondError maps service errors to status codes.
func respondError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return fail(c, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, http.StatusNotFound, "Chat not found")
	case errors.Is(err, domain.ErrConflict):
		return fail(c, http.StatusConflict, "Chat was modified concurrently, please retry")
	case errors.Is(err, auth.ErrCredential):
		return fail(c, http.StatusUnauthorized, auth.MsgTokenInvalid)
	default:
		log.Printf("WARN: %s %s failed: %v", c.Request().Method, c.Path(), err)
		return fail(c, http.StatusInternalServerError, "Internal server error")
	}
}
