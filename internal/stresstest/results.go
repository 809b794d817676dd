package stresstest

import (
	"fmt"
	"sync"
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

// Updatable is implemented by every node that rolls up request outcomes:
// results records, endpoints, users, tests and their handles
type Updatable interface {
	AddResponseTime(ms int64)
	AddFailed()
	AddConnectionError()
	CalculateRates(elapsed time.Duration)
	Summary() types.ResultsSummary
}

// Results holds the counters of one aggregation node
type Results struct {
	mu                    sync.RWMutex
	totalRequests         int64
	totalFailed           int64
	totalConnectionErrors int64 // Never counted in totalRequests
	totalResponseTimeMs   int64
	requestsPerSecond     float64
	failedPerSecond       float64
}

// NewResults creates an empty results record
func NewResults() *Results {
	return &Results{}
}

// AddResponseTime records a successful request and its latency
func (r *Results) AddResponseTime(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++
	r.totalResponseTimeMs += ms
}

// AddFailed records a request that got a non 2xx/3xx response
func (r *Results) AddFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++
	r.totalFailed++
}

// AddConnectionError records an attempt that never produced a response
func (r *Results) AddConnectionError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalConnectionErrors++
}

// CalculateRates computes requests and failures per second over elapsed.
// It is not part of the request path; callers invoke it once the
// measurement window is known.
func (r *Results) CalculateRates(elapsed time.Duration) {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsPerSecond = float64(r.totalRequests) / seconds
	r.failedPerSecond = float64(r.totalFailed) / seconds
}

// Summary returns a consistent copy of the counters
func (r *Results) Summary() types.ResultsSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return types.ResultsSummary{
		TotalRequests:         r.totalRequests,
		TotalFailed:           r.totalFailed,
		TotalConnectionErrors: r.totalConnectionErrors,
		TotalResponseTimeMs:   r.totalResponseTimeMs,
		AverageResponseTimeMs: r.averageLocked(),
		RequestsPerSecond:     r.requestsPerSecond,
		FailedPerSecond:       r.failedPerSecond,
	}
}

// TotalRequests returns the number of requests that got a response
func (r *Results) TotalRequests() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalRequests
}

// TotalFailed returns the number of failed responses
func (r *Results) TotalFailed() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalFailed
}

// TotalConnectionErrors returns the number of transport failures
func (r *Results) TotalConnectionErrors() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalConnectionErrors
}

// AverageResponseTimeMs returns the mean latency, or 0 if no requests
func (r *Results) AverageResponseTimeMs() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.averageLocked()
}

func (r *Results) averageLocked() float64 {
	if r.totalRequests == 0 {
		return 0
	}
	return float64(r.totalResponseTimeMs) / float64(r.totalRequests)
}

// SuccessRate returns the share of responses that succeeded as a percentage
func (r *Results) SuccessRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.totalRequests == 0 {
		return 0
	}
	return float64(r.totalRequests-r.totalFailed) / float64(r.totalRequests) * 100
}

func (r *Results) String() string {
	s := r.Summary()
	return fmt.Sprintf("requests: %d | failed: %d | connection errors: %d | avg: %.2fms | req/s: %.2f | failed/s: %.2f",
		s.TotalRequests, s.TotalFailed, s.TotalConnectionErrors, s.AverageResponseTimeMs, s.RequestsPerSecond, s.FailedPerSecond)
}
