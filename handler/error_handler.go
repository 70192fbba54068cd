package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/toolstack/toolstack/pkg/logger"
	"github.com/toolstack/toolstack/pkg/requestid"
)

// Helper functions for HTTP status code classification
func isClientError(statusCode int) bool {
	return statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError
}

// determineLogLevel maps HTTP status codes to appropriate log levels
func determineLogLevel(statusCode int) slog.Level {
	if isClientError(statusCode) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// statusFromError resolves the HTTP status for an error. Validation
// errors map to 422, HTTPError carries its own code, everything else
// is a 500.
func statusFromError(err error) int {
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

// NewErrorHandler creates the default error handler for JSON APIs.
// It logs the error with request context and renders a JSON error body.
// Configure this once in main.go and pass to all modules.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		status := statusFromError(err)
		requestID := requestid.FromContext(ctx.Request().Context())

		log.LogAttrs(ctx.Request().Context(), determineLogLevel(status), "request error",
			logger.RequestID(requestID),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", ctx.Request().Method),
			slog.String("path", ctx.Request().URL.Path),
			logger.Component("error_handler"),
		)

		response := JSONError(err, WithJSONStatus(status))
		if renderErr := response.Render(ctx.ResponseWriter(), ctx.Request()); renderErr != nil {
			log.ErrorContext(ctx.Request().Context(), "failed to render error response",
				logger.RequestID(requestID),
				logger.Error(renderErr),
			)
			http.Error(ctx.ResponseWriter(), "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
