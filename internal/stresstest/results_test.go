package stresstest

import (
	"sync"
	"testing"
	"time"
)

// TestResults_Counters tests the request accounting rules
func TestResults_Counters(t *testing.T) {
	r := NewResults()

	r.AddResponseTime(100)
	r.AddResponseTime(300)
	r.AddFailed()
	r.AddConnectionError()
	r.AddConnectionError()

	if got := r.TotalRequests(); got != 3 {
		t.Errorf("Expected 3 requests (connection errors excluded), got: %d", got)
	}
	if got := r.TotalFailed(); got != 1 {
		t.Errorf("Expected 1 failed, got: %d", got)
	}
	if got := r.TotalConnectionErrors(); got != 2 {
		t.Errorf("Expected 2 connection errors, got: %d", got)
	}

	// Failed responses count as requests without latency
	if got := r.AverageResponseTimeMs(); got < 133.3 || got > 133.4 {
		t.Errorf("Expected average ~133.33ms, got: %f", got)
	}
}

// TestResults_Empty tests derived values on an empty record
func TestResults_Empty(t *testing.T) {
	r := NewResults()

	if r.AverageResponseTimeMs() != 0 {
		t.Errorf("Expected 0 average, got: %f", r.AverageResponseTimeMs())
	}
	if r.SuccessRate() != 0 {
		t.Errorf("Expected 0 success rate, got: %f", r.SuccessRate())
	}

	r.CalculateRates(0)
	s := r.Summary()
	if s.RequestsPerSecond != 0 || s.FailedPerSecond != 0 {
		t.Errorf("Expected zero rates, got: %+v", s)
	}
}

// TestResults_CalculateRates tests rates are explicit and based on the given window
func TestResults_CalculateRates(t *testing.T) {
	r := NewResults()
	for i := 0; i < 10; i++ {
		r.AddResponseTime(5)
	}
	for i := 0; i < 4; i++ {
		r.AddFailed()
	}

	if s := r.Summary(); s.RequestsPerSecond != 0 {
		t.Errorf("Expected rates untouched before CalculateRates, got: %f", s.RequestsPerSecond)
	}

	r.CalculateRates(2 * time.Second)
	s := r.Summary()
	if s.RequestsPerSecond != 7 {
		t.Errorf("Expected 7 req/s, got: %f", s.RequestsPerSecond)
	}
	if s.FailedPerSecond != 2 {
		t.Errorf("Expected 2 failed/s, got: %f", s.FailedPerSecond)
	}
	if rate := r.SuccessRate(); rate < 71.42 || rate > 71.43 {
		t.Errorf("Expected success rate ~71.43%%, got: %f", rate)
	}
}

// TestResults_Concurrent tests no update is lost under contention
func TestResults_Concurrent(t *testing.T) {
	r := NewResults()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.AddResponseTime(1)
				r.AddFailed()
				r.AddConnectionError()
			}
		}()
	}
	wg.Wait()

	s := r.Summary()
	if s.TotalRequests != 10000 {
		t.Errorf("Expected 10000 requests, got: %d", s.TotalRequests)
	}
	if s.TotalFailed != 5000 {
		t.Errorf("Expected 5000 failed, got: %d", s.TotalFailed)
	}
	if s.TotalConnectionErrors != 5000 {
		t.Errorf("Expected 5000 connection errors, got: %d", s.TotalConnectionErrors)
	}
	if s.TotalResponseTimeMs != 5000 {
		t.Errorf("Expected 5000ms total, got: %d", s.TotalResponseTimeMs)
	}
}

// TestUpdatable_Rollup tests a user update reaches both its own and the global record
func TestUpdatable_Rollup(t *testing.T) {
	global := NewResults()
	user := newUser(t.Context(), "0", userConfig{globalResults: global})

	var u Updatable = user.Handle()
	u.AddResponseTime(10)
	u.AddFailed()
	u.AddConnectionError()

	if user.Results().TotalRequests() != 2 || global.TotalRequests() != 2 {
		t.Errorf("Expected 2 requests at both levels, got user=%d global=%d",
			user.Results().TotalRequests(), global.TotalRequests())
	}
	if user.Results().TotalConnectionErrors() != 1 || global.TotalConnectionErrors() != 1 {
		t.Errorf("Expected 1 connection error at both levels")
	}
}
