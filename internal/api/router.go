package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/metrics"
	"github.com/sirupsen/logrus"
)

var logger = logging.Component("api")

func NewRouter(handlers *Handlers) http.Handler {
	mux := http.NewServeMux()

	// People
	mux.HandleFunc("/people", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.SearchPeople(w, r)
		case http.MethodPost:
			handlers.ReportMissing(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/people/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/found") && r.Method == http.MethodPost:
			handlers.MarkFound(w, r)
		case strings.HasSuffix(r.URL.Path, "/found"):
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Status(w, r)
	})

	mux.Handle("/metrics", metrics.Handler())

	return withLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("[API] Request")
	})
}
