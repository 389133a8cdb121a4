// Package http assembles the public HTTP server for the support chat API.
package http

import (
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/service"
	v1 "github.com/xiaot623/gogo/supportchat/internal/transport/http/v1"
	"github.com/xiaot623/gogo/supportchat/internal/transport/ws"
)

const (
	apiVersion    = "1.0.0"
	statusMessage = "AI Customer Support API is running"
	bodyLimit     = "10M"
)

// NewServer creates and configures the HTTP server. wsServer and metrics
// may be nil, in which case their routes are not mounted.
func NewServer(cfg *config.Config, svc *service.Service, validator auth.Validator, wsServer *ws.Server, metrics *service.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Origins(),
		AllowCredentials: true,
		AllowMethods: []string{
			nethttp.MethodGet, nethttp.MethodHead, nethttp.MethodPut, nethttp.MethodPatch,
			nethttp.MethodPost, nethttp.MethodDelete, nethttp.MethodOptions,
		},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(rateLimiter(cfg))
	e.Use(middleware.BodyLimit(bodyLimit))

	e.GET("/", root)
	e.GET("/api/health", health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}
	if wsServer != nil {
		// Registered on the root so the static path wins over /:id and the
		// connection authenticates with hello instead of a header.
		e.GET("/api/chat/ws", wsServer.HandleWebSocket)
	}

	chatHandler := v1.NewHandler(svc)
	authMW := auth.Middleware(validator)
	chatHandler.RegisterRoutes(e.Group("/api/chat", authMW))
	// Legacy alias for clients that omit the /api prefix.
	chatHandler.RegisterRoutes(e.Group("/chat", authMW))

	return e
}

// rateLimiter limits each client IP to RateLimitMaxRequests per window.
func rateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	window := cfg.RateLimitWindow()
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.RateLimitMaxRequests) / window.Seconds()),
		Burst:     cfg.RateLimitMaxRequests,
		ExpiresIn: window,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(nethttp.StatusForbidden, domain.Envelope{Message: "Unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(nethttp.StatusTooManyRequests, domain.Envelope{
				Message: "Too many requests, please try again later.",
			})
		},
	})
}

func root(c echo.Context) error {
	return c.JSON(nethttp.StatusOK, map[string]interface{}{
		"status":  "OK",
		"message": statusMessage,
		"version": apiVersion,
		"endpoints": map[string]string{
			"health": "/api/health",
			"chat":   "/api/chat",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func health(c echo.Context) error {
	return c.JSON(nethttp.StatusOK, map[string]interface{}{
		"status":    "OK",
		"message":   statusMessage,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// errorHandler renders every unhandled error as an envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := nethttp.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch {
		case he.Code == nethttp.StatusNotFound:
			message = "Route not found"
		case he.Code < nethttp.StatusInternalServerError:
			message = fmt.Sprint(he.Message)
		}
	}
	if status >= nethttp.StatusInternalServerError {
		log.Printf("WARN: %s %s failed: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == nethttp.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, domain.Envelope{Message: message})
	}
	if err != nil {
		log.Printf("WARN: failed to write error response: %v", err)
	}
}
