package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/session"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Category      string `json:"category,omitempty"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// statusFor maps an error to the HTTP status it is answered with.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryConfiguration):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryState),
		errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func categoryOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return ""
}

// handleError logs err and writes an ErrorResponse.
func (s *Server) handleError(c echo.Context, err error, message string) error {
	code := statusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Category:      categoryOf(err),
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Error(err),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Warn("API request rejected", fields...)
	}
	if resp.Category != "" {
		s.httpMetrics().RecordHTTPRequestError(c.Request().Method, c.Path(), resp.Category)
	}
	return c.JSON(code, resp)
}

// badRequest wraps a decoding failure as a validation error.
func badRequest(err error, what string) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryValidation).
		Context("body", what).
		Build()
}
