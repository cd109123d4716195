package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

type snapshotSource interface {
	Latest() (*model.DeviceSnapshot, error)
}

type server struct {
	source snapshotSource
	logger *zap.Logger
}

type healthResponse struct {
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
}

// New serves the latest snapshot, a health check and the prometheus metrics of gatherer.
func New(source snapshotSource, gatherer prometheus.Gatherer) http.Handler {
	s := &server{source: source, logger: zap.L()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.GetHealth)
	mux.HandleFunc("GET /snapshot", s.GetSnapshot)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return LoggingMiddleware(mux)
}

func (s *server) GetHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.source.Latest()
	res := healthResponse{Status: "ok"}
	if snapshot != nil {
		res.LastSnapshot = &snapshot.Timestamp
	}
	status := http.StatusOK
	if err != nil {
		res.Status = "unhealthy"
		res.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.source.Latest()
	if snapshot == nil {
		if err == nil {
			err = errors.New("no snapshot")
		}
		handleError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}
