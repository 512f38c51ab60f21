package api

import (
	"net/http"
	"time"
)

// EnableCORS adds CORS headers so frontend can talk to the API
func (s *Server) EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// allow all origins for now - should probably restrict this later
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// allow the HTTP methods we use
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		// need this for JSON requests
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// handle preflight requests from browser
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code a handler wrote
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LogRequests writes one line per request
func (s *Server) LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.Log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
