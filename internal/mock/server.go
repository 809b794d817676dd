package mock

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Server is an HTTP target for load tests. Routes answer with a configured
// status after an optional delay, and can fail a share of their requests.
type Server struct {
	config     *Config
	routes     []*route
	logger     *logrus.Logger
	workdir    string
	httpServer *http.Server
	listener   net.Listener
	unmatched  atomic.Int64
	mu         sync.Mutex
}

// route is a compiled Route with its counters
type route struct {
	Route
	re       *regexp.Regexp
	label    string
	hits     atomic.Int64
	failures atomic.Int64
}

// NewServer creates a new mock server. Relative body files resolve against workdir.
func NewServer(config *Config, workdir string, logger *logrus.Logger) (*Server, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	routes := make([]*route, 0, len(config.Routes))
	for _, r := range config.Routes {
		compiled := &route{Route: r, label: r.Name}
		if compiled.label == "" {
			compiled.label = fmt.Sprintf("%s %s", r.Method, r.Path)
		}
		if r.PathType == "regex" {
			compiled.re = regexp.MustCompile(r.Path) // checked by validateConfig
		}
		routes = append(routes, compiled)
	}

	return &Server{
		config:  config,
		routes:  routes,
		logger:  logger,
		workdir: workdir,
	}, nil
}

// Handler returns the request handler, usable without Start
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Start starts the mock server in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Mock server error")
		}
	}()

	s.logger.WithFields(logrus.Fields{"addr": s.Address(), "routes": len(s.routes)}).Info("Mock server started")
	return nil
}

// Stop stops the mock server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	return err
}

// Address returns the base URL the server listens on
func (s *Server) Address() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// handleRequest handles incoming HTTP requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	_, _ = io.Copy(io.Discard, r.Body)
	r.Body.Close()

	rt := s.findMatchingRoute(r.Method, r.URL.Path)
	if rt == nil {
		s.unmatched.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Mock server: No route configured for %s %s", r.Method, r.URL.Path)
		s.logRequest(r, "none", http.StatusNotFound, start)
		return
	}

	rt.hits.Add(1)

	delay := time.Duration(rt.Delay) * time.Millisecond
	if rt.Jitter > 0 {
		delay += time.Duration(rand.IntN(rt.Jitter)) * time.Millisecond
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-r.Context().Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	for key, value := range rt.Headers {
		w.Header().Set(key, value)
	}

	status := rt.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := rt.Body

	if rt.FailureRate > 0 && rand.Float64() < rt.FailureRate {
		rt.failures.Add(1)
		status = rt.FailureStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body = ""
	} else if rt.BodyFile != "" {
		filePath := rt.BodyFile
		if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(s.workdir, filePath)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			status = http.StatusInternalServerError
			body = fmt.Sprintf("Mock server: Failed to read body file %s: %v", rt.BodyFile, err)
		} else {
			body = string(data)
		}
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))

	s.logRequest(r, rt.label, status, start)
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *route {
	for _, rt := range s.routes {
		if !strings.EqualFold(rt.Method, method) {
			continue
		}

		matched := false
		switch rt.PathType {
		case "", "exact":
			matched = rt.Path == path
		case "prefix":
			matched = strings.HasPrefix(path, rt.Path)
		case "regex":
			matched = rt.re.MatchString(path)
		}

		if matched {
			return rt
		}
	}

	return nil
}

func (s *Server) logRequest(r *http.Request, rule string, status int, start time.Time) {
	if !s.config.Logging {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"rule":     rule,
		"status":   status,
		"duration": time.Since(start),
	}).Debug("Mock request")
}

// Stats returns per-route counters in configuration order
func (s *Server) Stats() []RouteStats {
	stats := make([]RouteStats, 0, len(s.routes))
	for _, rt := range s.routes {
		stats = append(stats, RouteStats{
			Route:    rt.label,
			Hits:     rt.hits.Load(),
			Failures: rt.failures.Load(),
		})
	}
	return stats
}

// Unmatched returns the number of requests no route answered
func (s *Server) Unmatched() int64 {
	return s.unmatched.Load()
}
