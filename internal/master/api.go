package master

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/studiowebux/swarmcli/internal/types"
)

// maxBodyBytes caps the size of a test definition posted to the API
const maxBodyBytes = 1 << 20

// Handler returns the master's HTTP surface:
//
//	GET  /ws                 worker connections
//	POST /api/tests          create a test (body: test config)
//	POST /api/tests/start    start the test on every worker
//	POST /api/tests/stop     stop the test on every worker
//	POST /api/tests/finish   finish the test on every worker
//	GET  /api/workers        connected workers
//	GET  /api/reports        merged report plus per-worker reports
//	GET  /metrics            Prometheus metrics
func (m *Master) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", m.handleWorker)
	mux.HandleFunc("POST /api/tests", m.handleCreate)
	mux.HandleFunc("POST /api/tests/start", m.handleControl(m.Start))
	mux.HandleFunc("POST /api/tests/stop", m.handleControl(m.Stop))
	mux.HandleFunc("POST /api/tests/finish", m.handleControl(m.Finish))
	mux.HandleFunc("GET /api/workers", m.handleWorkers)
	mux.HandleFunc("GET /api/reports", m.handleReports)
	mux.Handle("GET /metrics", m.metrics.Handler())
	return mux
}

// CreateResponse is returned by POST /api/tests
type CreateResponse struct {
	Assignments map[string]int `json:"assignments"`
}

// ReportsResponse is returned by GET /api/reports
type ReportsResponse struct {
	Merged  types.Report            `json:"merged"`
	Workers map[string]types.Report `json:"workers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (m *Master) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		m.writeError(w, status, err)
		return
	}

	var config types.TestConfig
	if err := json.Unmarshal(body, &config); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := config.Validate(); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	assignments, err := m.CreateTest(r.Context(), &config)
	if err != nil {
		m.writeError(w, statusFor(err), err)
		return
	}

	m.writeJSON(w, http.StatusCreated, CreateResponse{Assignments: assignments})
}

func (m *Master) handleControl(action func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			m.writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (m *Master) handleWorkers(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, m.Workers())
}

func (m *Master) handleReports(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, ReportsResponse{
		Merged:  m.Report(),
		Workers: m.Reports(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoWorkers), errors.Is(err, ErrNoTest):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (m *Master) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.WithError(err).Warn("Failed to write response")
	}
}

func (m *Master) writeError(w http.ResponseWriter, status int, err error) {
	m.writeJSON(w, status, errorResponse{Error: err.Error()})
}
