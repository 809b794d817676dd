package stresstest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/types"
)

var (
	// ErrUserNotFound is returned when a user id is not in the registry
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyStarted is returned when Run is called more than once
	ErrAlreadyStarted = errors.New("test already started")
)

// Observer receives a report on every observation tick and once at the end
type Observer func(report types.Report)

// Test orchestrates a pool of users against a set of endpoints
type Test struct {
	name          string
	userCount     int
	runTime       time.Duration // 0 = until stopped or finished
	sleepMin      time.Duration
	sleepMax      time.Duration
	host          string
	endpoints     []*Endpoint
	globalHeaders map[string]string
	results       *Results
	client        *http.Client
	limiter       *rate.Limiter
	logger        logging.Logger

	observeInterval time.Duration
	observer        Observer

	ctx    context.Context
	cancel context.CancelFunc
	intent intentCell
	status *statusCell

	started atomic.Bool
	done    chan struct{}

	mu        sync.RWMutex // guards timestamps and the registry
	startedAt time.Time
	endedAt   time.Time
	users     map[string]*User
	userIDs   []string

	subMu       sync.Mutex
	subscribers []chan types.Status
	broadcasted bool
	final       types.Status
}

// NewTest builds a test from its configuration
func NewTest(config *types.TestConfig, logger logging.Logger) (*Test, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test config: %w", err)
	}

	client, err := buildHTTPClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	endpoints := make([]*Endpoint, 0, len(config.Endpoints))
	for _, ep := range config.Endpoints {
		endpoints = append(endpoints, NewEndpoint(ep))
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := int(math.Ceil(config.RateLimit))
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	if logger == nil {
		logger = logging.Discard
	}

	sleepMin, sleepMax := config.GetSleepRange()
	ctx, cancel := context.WithCancel(context.Background())

	return &Test{
		name:          config.Name,
		userCount:     config.UserCount,
		runTime:       config.GetRunTime(),
		sleepMin:      sleepMin,
		sleepMax:      sleepMax,
		host:          config.Host,
		endpoints:     endpoints,
		globalHeaders: config.GlobalHeaders,
		results:       NewResults(),
		client:        client,
		limiter:       limiter,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		status:        newStatusCell(),
		done:          make(chan struct{}),
		users:         make(map[string]*User),
	}, nil
}

// SetRunTime replaces the run-time bound. Zero runs until stopped or
// finished. Must be called before Run.
func (t *Test) SetRunTime(d time.Duration) {
	t.runTime = d
}

// SetLogger replaces the logger. Must be called before Run.
func (t *Test) SetLogger(logger logging.Logger) {
	if logger == nil {
		logger = logging.Discard
	}
	t.logger = logger
}

// SetObserver registers fn to be called every interval while the test runs
// and once after it ends. Must be called before Run.
func (t *Test) SetObserver(interval time.Duration, fn Observer) {
	t.observeInterval = interval
	t.observer = fn
}

// Run starts the users and blocks until the test is stopped, finished, or
// its run time elapses. When Run returns every user has exited. Cancelling
// ctx stops the test.
func (t *Test) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(t.done)

	stopOnParent := context.AfterFunc(ctx, t.Stop)
	defer stopOnParent()

	runCtx, runCancel := context.WithCancel(t.ctx)
	defer runCancel()

	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()
	t.status.start()

	var deadline <-chan time.Time
	if t.runTime > 0 {
		timer := time.NewTimer(t.runTime)
		defer timer.Stop()
		deadline = timer.C
	}

	var tick <-chan time.Time
	if t.observer != nil && t.observeInterval > 0 {
		ticker := time.NewTicker(t.observeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	bodyDone := make(chan struct{})
	go func() {
		defer close(bodyDone)
		t.runUsers(runCtx)
	}()

	outcome := intentFinish
wait:
	for {
		select {
		case <-t.ctx.Done():
			outcome = t.intent.get()
			break wait
		case <-deadline:
			break wait
		case <-bodyDone:
			break wait
		case <-tick:
			t.observe()
		}
	}

	end := time.Now()
	t.mu.Lock()
	t.endedAt = end
	t.mu.Unlock()

	// Cascade to users, cancel the scope, then wait for quiescence. The
	// second cascade catches users spawned while the first one ran.
	t.cascade(outcome)
	runCancel()
	<-bodyDone

	// A Stop that landed after the first cascade overrides it
	if t.intent.get() == intentStop {
		outcome = intentStop
	}
	t.cascade(outcome)

	if outcome == intentStop {
		t.status.stop()
	} else {
		t.status.finish()
	}
	status := t.status.get()

	if elapsed, ok := t.ElapsedTime(); ok {
		t.CalculateRates(elapsed)
	}
	t.broadcast(status)

	if t.observer != nil {
		t.observer(t.Report())
	}

	return nil
}

// runUsers registers and spawns every user, then waits for all of them
func (t *Test) runUsers(ctx context.Context) {
	cfg := userConfig{
		host:          t.host,
		endpoints:     t.endpoints,
		globalHeaders: t.globalHeaders,
		globalResults: t.results,
		sleepMin:      t.sleepMin,
		sleepMax:      t.sleepMax,
		client:        t.client,
		limiter:       t.limiter,
		logger:        t.logger,
	}

	var g errgroup.Group
	for i := 0; i < t.userCount; i++ {
		if ctx.Err() != nil {
			break
		}

		user := newUser(ctx, strconv.Itoa(i), cfg)
		t.register(user)

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					t.logger.LogBuffered(logging.ERROR, fmt.Sprintf("User [%s] panicked: %v\n%s", user.ID(), r, debug.Stack()))
				}
			}()
			user.Run()
			return nil
		})
	}

	_ = g.Wait()
}

func (t *Test) register(user *User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user.ID()] = user
	t.userIDs = append(t.userIDs, user.ID())
}

func (t *Test) cascade(outcome intent) {
	for _, user := range t.Users() {
		if outcome == intentStop {
			user.Stop()
		} else {
			user.Finish()
		}
	}
}

func (t *Test) observe() {
	t.mu.RLock()
	elapsed := time.Since(t.startedAt)
	t.mu.RUnlock()

	t.CalculateRates(elapsed)
	t.observer(t.Report())
}

// Stop ends the test with status STOPPED. Safe to call at any time and
// from any goroutine; a no-op once the test has ended.
func (t *Test) Stop() {
	t.intent.set(intentStop)
	t.cancel()
}

// Finish ends the test with status FINISHED unless Stop was also called
func (t *Test) Finish() {
	t.intent.set(intentFinish)
	t.cancel()
}

// StopUser stops a single user
func (t *Test) StopUser(id string) error {
	user, ok := t.User(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	user.Stop()
	return nil
}

// User returns a registered user by id
func (t *Test) User(id string) (*User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[id]
	return user, ok
}

// Users returns the registered users in spawn order
func (t *Test) Users() []*User {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]*User, 0, len(t.userIDs))
	for _, id := range t.userIDs {
		users = append(users, t.users[id])
	}
	return users
}

// Endpoints returns the test endpoints
func (t *Test) Endpoints() []*Endpoint {
	return t.endpoints
}

// Results returns the global results
func (t *Test) Results() *Results {
	return t.results
}

// Status returns the current status
func (t *Test) Status() types.Status {
	return t.status.get()
}

// Done is closed when Run has returned
func (t *Test) Done() <-chan struct{} {
	return t.done
}

// UserCount returns the configured number of users
func (t *Test) UserCount() int {
	return t.userCount
}

// RunTime returns the configured run-time bound
func (t *Test) RunTime() time.Duration {
	return t.runTime
}

// ElapsedTime returns the time between start and end once both are known
func (t *Test) ElapsedTime() (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.startedAt.IsZero() || t.endedAt.IsZero() {
		return 0, false
	}
	return t.endedAt.Sub(t.startedAt), true
}

// Subscribe returns a channel that receives the terminal status once.
// Cancellation does not depend on it; it only notifies observers.
func (t *Test) Subscribe() <-chan types.Status {
	ch := make(chan types.Status, 1)

	t.subMu.Lock()
	defer t.subMu.Unlock()

	if t.broadcasted {
		ch <- t.final
		close(ch)
		return ch
	}
	t.subscribers = append(t.subscribers, ch)
	return ch
}

func (t *Test) broadcast(status types.Status) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for _, ch := range t.subscribers {
		ch <- status
		close(ch)
	}
	t.subscribers = nil
	t.broadcasted = true
	t.final = status
}

// AddResponseTime records a success in the global results
func (t *Test) AddResponseTime(ms int64) { t.results.AddResponseTime(ms) }

// AddFailed records a failure in the global results
func (t *Test) AddFailed() { t.results.AddFailed() }

// AddConnectionError records a connection error in the global results
func (t *Test) AddConnectionError() { t.results.AddConnectionError() }

// CalculateRates computes rates for the global results, every endpoint and
// every user
func (t *Test) CalculateRates(elapsed time.Duration) {
	t.results.CalculateRates(elapsed)
	for _, ep := range t.endpoints {
		ep.CalculateRates(elapsed)
	}
	for _, user := range t.Users() {
		user.CalculateRates(elapsed)
	}
}

// Summary returns the global results
func (t *Test) Summary() types.ResultsSummary {
	return t.results.Summary()
}

// Handle returns a control handle for the test
func (t *Test) Handle() TestHandle {
	return TestHandle{test: t}
}

func (t *Test) String() string {
	t.mu.RLock()
	started, ended := t.startedAt, t.endedAt
	t.mu.RUnlock()

	elapsed := "n/a"
	if d, ok := t.ElapsedTime(); ok {
		elapsed = d.Round(time.Millisecond).String()
	}

	return fmt.Sprintf("Status [%s] | Users [%d] | RunTime [%s] | Sleep [%s-%s] | Host [%s] | GlobalHeaders [%v] | Results [%s] | Started [%s] | Ended [%s] | Elapsed [%s]",
		t.Status(), t.userCount, t.runTime, t.sleepMin, t.sleepMax, t.host, t.globalHeaders, t.results,
		formatTime(started), formatTime(ended), elapsed)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "n/a"
	}
	return ts.Format(time.RFC3339)
}
