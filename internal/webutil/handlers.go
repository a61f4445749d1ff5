// Package webutil adapts error-returning handlers to net/http and renders
// their errors as JSON.
package webutil

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/septivank/sensor-telemetry/internal/logging"
)

// AppHandler is a handler that returns an error instead of writing one
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// Handlers turns AppHandlers into http.HandlerFuncs that log through logger
type Handlers struct {
	logger *zap.Logger
}

// NewHandlers creates a handler adapter
func NewHandlers(logger *zap.Logger) *Handlers {
	return &Handlers{logger: logger}
}

// Make adapts handler. HTTPErrors are rendered with their code and message;
// any other error becomes a generic 500 and is logged with its cause.
func (h *Handlers) Make(handler AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := handler(w, r)
		if err == nil {
			return
		}

		logger := logging.WithRequestID(h.logger, middleware.GetReqID(r.Context())).With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			logger.Error("unhandled internal error", zap.Error(err))
			respondInternalError(w)
			return
		}

		level := zapcore.WarnLevel
		if httpErr.Code >= 500 {
			level = zapcore.ErrorLevel
		}
		fields := []zap.Field{zap.Int("code", httpErr.Code), zap.String("msg", httpErr.Message)}
		if cause := errors.Unwrap(httpErr); cause != nil && cause.Error() != httpErr.Message {
			fields = append(fields, zap.NamedError("cause", cause))
		}
		if ce := logger.Check(level, "client error response"); ce != nil {
			ce.Write(fields...)
		}

		if err := RespondWithJSON(w, httpErr.Code, httpErr.body()); err != nil {
			respondInternalError(w)
		}
	}
}
