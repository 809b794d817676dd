package types

import (
	"fmt"
	"strings"
	"time"
)

// Method is an HTTP method a test endpoint can use
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// IsValid reports whether the method is one of the supported verbs
func (m Method) IsValid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	}
	return false
}

// HasBody reports whether requests with this method carry the endpoint body
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut
}

// Status is the lifecycle status shared by tests and users
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusRunning  Status = "RUNNING"
	StatusStopped  Status = "STOPPED"
	StatusFinished Status = "FINISHED"
)

// IsTerminal returns true for STOPPED and FINISHED
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusFinished
}

// EndpointConfig describes one target route of a test
type EndpointConfig struct {
	Method  Method            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"` // GET only
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`     // POST/PUT only
}

// TLSConfig contains client TLS settings for the target host
type TLSConfig struct {
	CertFile           string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile             string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// TestConfig is the definition of a load test, loaded from a test file or
// received from a master in a Create command
type TestConfig struct {
	Name              string            `json:"name,omitempty" yaml:"name,omitempty"`
	UserCount         int               `json:"user_count" yaml:"user_count"`
	RunTimeSec        int               `json:"run_time_sec,omitempty" yaml:"run_time_sec,omitempty"` // 0 = until stopped
	SleepRange        [2]int64          `json:"sleep_range" yaml:"sleep_range"`                       // [min, max) in milliseconds
	Host              string            `json:"host" yaml:"host"`
	Endpoints         []EndpointConfig  `json:"endpoints" yaml:"endpoints"`
	GlobalHeaders     map[string]string `json:"global_headers,omitempty" yaml:"global_headers,omitempty"`
	RequestTimeoutSec int               `json:"request_timeout_sec,omitempty" yaml:"request_timeout_sec,omitempty"`
	RateLimit         float64           `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // requests/second across all users, 0 = unlimited
	TLS               *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Validate validates the test configuration
func (c *TestConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if !strings.HasPrefix(c.Host, "http://") && !strings.HasPrefix(c.Host, "https://") {
		return fmt.Errorf("host must start with http:// or https://")
	}
	if c.UserCount < 0 {
		return fmt.Errorf("user count cannot be negative")
	}
	if c.RunTimeSec < 0 {
		return fmt.Errorf("run time cannot be negative")
	}
	if c.SleepRange[0] < 0 || c.SleepRange[1] < 0 {
		return fmt.Errorf("sleep range cannot be negative")
	}
	if c.SleepRange[0] > c.SleepRange[1] {
		return fmt.Errorf("sleep range min (%d) cannot exceed max (%d)", c.SleepRange[0], c.SleepRange[1])
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for i, ep := range c.Endpoints {
		if !ep.Method.IsValid() {
			return fmt.Errorf("endpoint %d: unsupported method %q", i, ep.Method)
		}
		if ep.URL == "" {
			return fmt.Errorf("endpoint %d: url is required", i)
		}
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	return nil
}

// GetRunTime returns the run-time bound as time.Duration
func (c *TestConfig) GetRunTime() time.Duration {
	if c.RunTimeSec == 0 {
		return 0 // Unbounded
	}
	return time.Duration(c.RunTimeSec) * time.Second
}

// GetSleepRange returns the sleep range bounds as durations
func (c *TestConfig) GetSleepRange() (time.Duration, time.Duration) {
	return time.Duration(c.SleepRange[0]) * time.Millisecond,
		time.Duration(c.SleepRange[1]) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as time.Duration
func (c *TestConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeoutSec == 0 {
		return 10 * time.Second // Default 10 seconds
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Clone returns a deep copy of the config so that a caller can adjust
// user count or run time without affecting the original
func (c *TestConfig) Clone() *TestConfig {
	clone := *c
	clone.Endpoints = make([]EndpointConfig, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		clone.Endpoints[i] = EndpointConfig{
			Method:  ep.Method,
			URL:     ep.URL,
			Headers: copyMap(ep.Headers),
			Params:  copyMap(ep.Params),
			Body:    ep.Body,
		}
	}
	clone.GlobalHeaders = copyMap(c.GlobalHeaders)
	if c.TLS != nil {
		tls := *c.TLS
		clone.TLS = &tls
	}
	return &clone
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ResultsSummary is a point-in-time snapshot of a results record
type ResultsSummary struct {
	TotalRequests         int64   `json:"total_requests" yaml:"total_requests"`
	TotalFailed           int64   `json:"total_failed" yaml:"total_failed"`
	TotalConnectionErrors int64   `json:"total_connection_errors" yaml:"total_connection_errors"`
	TotalResponseTimeMs   int64   `json:"total_response_time_ms" yaml:"total_response_time_ms"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms" yaml:"average_response_time_ms"`
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests_per_second"`
	FailedPerSecond       float64 `json:"failed_per_second" yaml:"failed_per_second"`
}

// Merge adds another summary's counters into this one. Derived values are
// recomputed from the merged counters; rates are summed since workers run
// concurrently over the same window.
func (s *ResultsSummary) Merge(other ResultsSummary) {
	s.TotalRequests += other.TotalRequests
	s.TotalFailed += other.TotalFailed
	s.TotalConnectionErrors += other.TotalConnectionErrors
	s.TotalResponseTimeMs += other.TotalResponseTimeMs
	s.RequestsPerSecond += other.RequestsPerSecond
	s.FailedPerSecond += other.FailedPerSecond
	s.AverageResponseTimeMs = 0
	if s.TotalRequests > 0 {
		s.AverageResponseTimeMs = float64(s.TotalResponseTimeMs) / float64(s.TotalRequests)
	}
}

// EndpointReport is the results of one endpoint
type EndpointReport struct {
	Method  Method         `json:"method" yaml:"method"`
	URL     string         `json:"url" yaml:"url"`
	Results ResultsSummary `json:"results" yaml:"results"`
}

// UserReport is the results of one virtual user
type UserReport struct {
	ID        string           `json:"id" yaml:"id"`
	Status    Status           `json:"status" yaml:"status"`
	Results   ResultsSummary   `json:"results" yaml:"results"`
	Endpoints []EndpointReport `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// Report is a full hierarchical snapshot of a test
type Report struct {
	Name      string           `json:"name,omitempty" yaml:"name,omitempty"`
	Host      string           `json:"host" yaml:"host"`
	Status    Status           `json:"status" yaml:"status"`
	UserCount int              `json:"user_count" yaml:"user_count"`
	StartedAt *time.Time       `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt   *time.Time       `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	ElapsedMs int64            `json:"elapsed_ms" yaml:"elapsed_ms"`
	Results   ResultsSummary   `json:"results" yaml:"results"`
	Endpoints []EndpointReport `json:"endpoints" yaml:"endpoints"`
	Users     []UserReport     `json:"users,omitempty" yaml:"users,omitempty"`
}
