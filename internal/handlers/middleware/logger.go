package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
	wroteHeader    bool
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	if !w.data.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	if w.data.wroteHeader {
		return
	}
	w.data.wroteHeader = true
	w.data.responseStatus = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Log every request once it is served
// Server errors are logged as errors, client errors as warnings
// Request id is taken from X-Request-ID header or generated, and echoed back
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			next.ServeHTTP(lw, r)

			log := l.Info
			switch {
			case lw.data.responseStatus >= http.StatusInternalServerError:
				log = l.Error
			case lw.data.responseStatus >= http.StatusBadRequest:
				log = l.Warn
			}

			log(
				"got HTTP request",
				"request_id", requestID,
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			)
		})
	}
}
