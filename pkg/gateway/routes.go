package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/pinvault/pkg/logging"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.livenessHandler)

	r.Route("/v1/pinning", func(r chi.Router) {
		r.Get("/status", s.statsHandler)
		r.Get("/health", s.healthHandler)
		r.Get("/usage", s.usageHandler)
		r.Post("/health-check", s.healthCheckHandler)
		r.Post("/emergency-unpin", s.emergencyUnpinHandler)
		r.Get("/hash/{hash}", s.hashStatusHandler)

		r.Route("/content", func(r chi.Router) {
			r.Get("/", s.listContentHandler)
			r.Post("/{id}/pin", s.pinContentHandler)
			r.Post("/{id}/pin-hash", s.pinHashHandler)
			r.Post("/{id}/repair", s.repairHandler)
			r.Delete("/{id}", s.unpinContentHandler)
		})
	})

	if s.recorder != nil {
		r.Method(http.MethodGet, "/metrics", s.recorder.Handler())
	}
	return r
}

// statusResponseWriter captures the status code and bytes written
type statusResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// loggingMiddleware logs basic request info and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		s.logger.ComponentInfo(logging.ComponentGateway, "request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", srw.status),
			zap.Int("bytes", srw.bytes),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("duration", time.Since(start).String()),
		)
	})
}
