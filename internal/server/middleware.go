package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/brokerauth-go/internal/api"
	"github.com/MahdiBaghbani/brokerauth-go/internal/appctx"
)

// requestLoggerMiddleware builds the request-scoped logger (request
// id, resolved client address, method, path), stores it in the
// context for the handlers, and writes one access log line per
// request.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLogger := s.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", s.trustedProxies.ClientIPString(r),
			"method", r.Method,
			"path", r.URL.Path,
		)
		r = r.WithContext(appctx.WithLogger(r.Context(), reqLogger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			reqLogger.Debug("request",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// recoverDenyMiddleware catches handler panics. Unlike the stock
// recoverer it answers with the contract's deny verdict when nothing
// has been written yet, so the broker fails closed.
func (s *Server) recoverDenyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, _ := w.(middleware.WrapResponseWriter)
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				return
			}
			appctx.Logger(r.Context()).Error("handler panic",
				"panic", rec,
			)
			if ww == nil || ww.Status() == 0 {
				api.WriteDeny(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware attaches the configured per-request deadline. The
// data source inherits it, so a stuck lookup collapses into a deny
// instead of holding the connection.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
