package grades

import (
	"errors"
	"log/slog"
	"net/http"

	"gradewatch-backend/lib/scrapers/powercampus"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the two operations the thin client calls.
func RegisterRoutes(router gin.IRouter, s *Service) {
	auth := router.Group("/auth")
	auth.POST("/login", s.handleLogin)

	grades := router.Group("/grades")
	grades.POST("/fetch", s.handleFetch)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool                `json:"success"`
	Cookies powercampus.Session `json:"cookies"`
}

func (s *Service) handleLogin(c *gin.Context) {
	var req loginRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		writeError(c, ErrInvalidArgument)
		return
	}

	session, err := s.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Success: true, Cookies: session})
}

type fetchRequest struct {
	Cookies        powercampus.Session `json:"cookies"`
	TrackedCourses []string            `json:"trackedCourses"`
}

type fetchResponse struct {
	Success bool `json:"success"`
	FetchResult
}

func (s *Service) handleFetch(c *gin.Context) {
	var req fetchRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		writeError(c, ErrInvalidArgument)
		return
	}

	result, err := s.FetchGrades(c.Request.Context(), req.Cookies, req.TrackedCourses)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fetchResponse{Success: true, FetchResult: result})
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError maps the failure taxonomy onto status codes. Sentinel
// messages (and the portal's own rejection text carried on them) pass
// through; anything unexpected is logged and replaced with a safe
// message.
func writeError(c *gin.Context, err error) {
	var status int
	var kind string

	switch {
	case errors.Is(err, ErrInvalidArgument):
		status, kind = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, powercampus.ErrUnknownUsername):
		status, kind = http.StatusUnauthorized, "unknown_username"
	case errors.Is(err, powercampus.ErrInvalidPassword):
		status, kind = http.StatusUnauthorized, "invalid_password"
	case errors.Is(err, powercampus.ErrAuthTimeout):
		status, kind = http.StatusUnauthorized, "auth_timeout"
	case errors.Is(err, powercampus.ErrAuthFailed):
		status, kind = http.StatusUnauthorized, "auth_failed"
	case errors.Is(err, powercampus.ErrSessionExpired):
		status, kind = http.StatusUnauthorized, "session_expired"
	case errors.Is(err, powercampus.ErrUpstreamUnreachable):
		status, kind = http.StatusGatewayTimeout, "upstream_unreachable"
	default:
		slog.ErrorContext(c.Request.Context(), "request failed unexpectedly", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": errorBody{
				Kind:    "extraction_failed",
				Message: "failed to process the request, please try again later",
			},
		})
		return
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": errorBody{Kind: kind, Message: err.Error()},
	})
}
