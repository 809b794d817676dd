package stresstest

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/types"
)

// User is a virtual client running an independent sleep/request loop
type User struct {
	id            string
	host          string
	endpoints     []*Endpoint
	globalHeaders map[string]string
	globalResults *Results
	sleepMin      time.Duration
	sleepMax      time.Duration
	client        *http.Client
	limiter       *rate.Limiter // nil when unlimited
	logger        logging.Logger
	rng           *rand.Rand // only used by the loop goroutine

	ctx    context.Context
	cancel context.CancelFunc
	status *statusCell
	done   chan struct{}

	results         *Results
	endpointMu      sync.RWMutex
	endpointResults map[string]*Results // keyed by endpoint URL
}

// userConfig carries what a test shares with each of its users
type userConfig struct {
	host          string
	endpoints     []*Endpoint
	globalHeaders map[string]string
	globalResults *Results
	sleepMin      time.Duration
	sleepMax      time.Duration
	client        *http.Client
	limiter       *rate.Limiter
	logger        logging.Logger
}

// newUser creates a user whose cancellation is a child of parent
func newUser(parent context.Context, id string, cfg userConfig) *User {
	ctx, cancel := context.WithCancel(parent)
	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard
	}

	return &User{
		id:              id,
		host:            cfg.host,
		endpoints:       cfg.endpoints,
		globalHeaders:   cfg.globalHeaders,
		globalResults:   cfg.globalResults,
		sleepMin:        cfg.sleepMin,
		sleepMax:        cfg.sleepMax,
		client:          cfg.client,
		limiter:         cfg.limiter,
		logger:          logger,
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		ctx:             ctx,
		cancel:          cancel,
		status:          newStatusCell(),
		done:            make(chan struct{}),
		results:         NewResults(),
		endpointResults: make(map[string]*Results),
	}
}

// ID returns the user identifier
func (u *User) ID() string {
	return u.id
}

// Status returns the current status
func (u *User) Status() types.Status {
	return u.status.get()
}

// Results returns the user's own totals
func (u *User) Results() *Results {
	return u.results
}

// Done is closed when the loop has returned
func (u *User) Done() <-chan struct{} {
	return u.done
}

// Run executes the request loop until the user is cancelled
func (u *User) Run() {
	defer close(u.done)
	defer u.logger.LogBuffered(logging.INFO, fmt.Sprintf("User [%s] stopped", u.id))

	if !u.status.start() {
		return
	}
	if len(u.endpoints) == 0 {
		<-u.ctx.Done()
		return
	}

	for {
		endpoint := u.selectRandomEndpoint()

		if !u.sleep(u.selectRandomSleep()) {
			return
		}

		if u.limiter != nil {
			if err := u.limiter.Wait(u.ctx); err != nil {
				return
			}
		}

		u.execute(endpoint)

		if u.ctx.Err() != nil {
			return
		}
	}
}

// Stop cancels the user and marks it STOPPED
func (u *User) Stop() {
	u.status.stop()
	u.cancel()
}

// Finish cancels the user and marks it FINISHED unless already STOPPED
func (u *User) Finish() {
	u.status.finish()
	u.cancel()
}

// sleep waits for d or until cancelled. It returns false when cancelled.
func (u *User) sleep(d time.Duration) bool {
	if d <= 0 {
		return u.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-u.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (u *User) selectRandomEndpoint() *Endpoint {
	return u.endpoints[u.rng.IntN(len(u.endpoints))]
}

// selectRandomSleep draws from [min, max), or returns min when the range is empty
func (u *User) selectRandomSleep() time.Duration {
	if u.sleepMax <= u.sleepMin {
		return u.sleepMin
	}
	return u.sleepMin + time.Duration(u.rng.Int64N(int64(u.sleepMax-u.sleepMin)))
}

// execute sends one request and records its outcome at the endpoint, user
// and global levels. A request abandoned by cancellation records nothing.
func (u *User) execute(endpoint *Endpoint) {
	req, err := buildRequest(u.ctx, u.host, endpoint, u.globalHeaders)
	if err != nil {
		u.logger.LogBuffered(logging.ERROR, fmt.Sprintf("User: [%s] | %v", u.id, err))
		u.recordConnectionError(endpoint)
		return
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		if u.ctx.Err() != nil {
			return
		}
		u.logger.LogBuffered(logging.ERROR, fmt.Sprintf("User: [%s] | ConnectionError | %s %s | %v", u.id, endpoint.Method(), req.URL, err))
		u.recordConnectionError(endpoint)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := time.Since(start)

	if u.ctx.Err() != nil {
		return
	}

	u.logger.LogBuffered(logging.INFO, fmt.Sprintf("User: [%s] | %d %s %s | %s", u.id, resp.StatusCode, endpoint.Method(), req.URL, latency.Round(time.Microsecond)))

	if isSuccess(resp.StatusCode) {
		u.recordResponseTime(endpoint, latency.Milliseconds())
	} else {
		u.recordFailed(endpoint)
	}
}

func (u *User) recordResponseTime(endpoint *Endpoint, ms int64) {
	endpoint.AddResponseTime(ms)
	u.endpointResult(endpoint.URL()).AddResponseTime(ms)
	u.AddResponseTime(ms)
}

func (u *User) recordFailed(endpoint *Endpoint) {
	endpoint.AddFailed()
	u.endpointResult(endpoint.URL()).AddFailed()
	u.AddFailed()
}

func (u *User) recordConnectionError(endpoint *Endpoint) {
	endpoint.AddConnectionError()
	u.endpointResult(endpoint.URL()).AddConnectionError()
	u.AddConnectionError()
}

func (u *User) endpointResult(url string) *Results {
	u.endpointMu.RLock()
	r, ok := u.endpointResults[url]
	u.endpointMu.RUnlock()
	if ok {
		return r
	}

	u.endpointMu.Lock()
	defer u.endpointMu.Unlock()
	if r, ok = u.endpointResults[url]; !ok {
		r = NewResults()
		u.endpointResults[url] = r
	}
	return r
}

// EndpointResults returns a snapshot of the user's per-endpoint results
func (u *User) EndpointResults() map[string]types.ResultsSummary {
	u.endpointMu.RLock()
	defer u.endpointMu.RUnlock()

	out := make(map[string]types.ResultsSummary, len(u.endpointResults))
	for url, r := range u.endpointResults {
		out[url] = r.Summary()
	}
	return out
}

// AddResponseTime rolls a success into the user and global totals
func (u *User) AddResponseTime(ms int64) {
	u.globalResults.AddResponseTime(ms)
	u.results.AddResponseTime(ms)
}

// AddFailed rolls a failure into the user and global totals
func (u *User) AddFailed() {
	u.globalResults.AddFailed()
	u.results.AddFailed()
}

// AddConnectionError rolls a connection error into the user and global totals
func (u *User) AddConnectionError() {
	u.globalResults.AddConnectionError()
	u.results.AddConnectionError()
}

// CalculateRates computes rates for the user and its endpoint results
func (u *User) CalculateRates(elapsed time.Duration) {
	u.results.CalculateRates(elapsed)

	u.endpointMu.RLock()
	defer u.endpointMu.RUnlock()
	for _, r := range u.endpointResults {
		r.CalculateRates(elapsed)
	}
}

// Summary returns the user's own totals
func (u *User) Summary() types.ResultsSummary {
	return u.results.Summary()
}

// Report returns the user's results snapshot
func (u *User) Report() types.UserReport {
	endpoints := u.EndpointResults()
	urls := make([]string, 0, len(endpoints))
	for url := range endpoints {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	report := types.UserReport{
		ID:      u.id,
		Status:  u.Status(),
		Results: u.results.Summary(),
	}
	for _, url := range urls {
		report.Endpoints = append(report.Endpoints, types.EndpointReport{URL: url, Results: endpoints[url]})
	}
	return report
}

// Handle returns a control handle for the user
func (u *User) Handle() UserHandle {
	return UserHandle{user: u}
}

func (u *User) String() string {
	return fmt.Sprintf("User [%s] | Status [%s] | Sleep [%s-%s] | Results [%s]",
		u.id, u.Status(), u.sleepMin, u.sleepMax, u.results)
}
