package stresstest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/swarmcli/internal/types"
)

// newTestConfig returns a config with a short sleep range against host
func newTestConfig(host string, users int) *types.TestConfig {
	return &types.TestConfig{
		Name:       "test",
		UserCount:  users,
		SleepRange: [2]int64{1, 10},
		Host:       host,
		Endpoints: []types.EndpointConfig{
			{Method: types.MethodGet, URL: "/a"},
			{Method: types.MethodPost, URL: "/b", Body: `{"k":"v"}`},
		},
	}
}

// newTestServer returns a server answering every request with status
func newTestServer(t *testing.T, status int) (*httptest.Server, *int64) {
	var count int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&count, 1)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &count
}

// runAsync starts the test and returns a channel carrying Run's error
func runAsync(ctx context.Context, test *Test) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- test.Run(ctx)
	}()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

// recordingLogger keeps every line for assertions
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) LogBuffered(level logrus.Level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level.String()+" "+message)
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// TestTest_RunTimeElapses tests a bounded test finishes on its own
func TestTest_RunTimeElapses(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 3), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(300 * time.Millisecond)

	waitRun(t, runAsync(context.Background(), test))

	if test.Status() != types.StatusFinished {
		t.Errorf("Expected FINISHED, got: %s", test.Status())
	}

	s := test.Results().Summary()
	if s.TotalRequests == 0 {
		t.Error("Expected requests to be recorded")
	}
	if s.TotalFailed != 0 || s.TotalConnectionErrors != 0 {
		t.Errorf("Expected no failures, got: %+v", s)
	}
	if s.RequestsPerSecond <= 0 {
		t.Errorf("Expected rates to be calculated, got: %f", s.RequestsPerSecond)
	}

	for _, user := range test.Users() {
		if user.Status() != types.StatusFinished {
			t.Errorf("Expected user %s FINISHED, got: %s", user.ID(), user.Status())
		}
	}

	elapsed, ok := test.ElapsedTime()
	if !ok {
		t.Fatal("Expected elapsed time once ended")
	}
	if elapsed < 300*time.Millisecond {
		t.Errorf("Expected elapsed >= 300ms, got: %s", elapsed)
	}
}

// TestTest_TotalsRollUp tests the sum of user and endpoint totals equals the global totals
func TestTest_TotalsRollUp(t *testing.T) {
	server, hits := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 5), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(300 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	global := test.Results().TotalRequests()

	var userSum, endpointSum int64
	for _, user := range test.Users() {
		userSum += user.Results().TotalRequests()

		var perEndpoint int64
		for _, s := range user.EndpointResults() {
			perEndpoint += s.TotalRequests
		}
		if perEndpoint != user.Results().TotalRequests() {
			t.Errorf("User %s: per-endpoint sum %d != user total %d", user.ID(), perEndpoint, user.Results().TotalRequests())
		}
	}
	for _, ep := range test.Endpoints() {
		endpointSum += ep.Results().TotalRequests()
	}

	if userSum != global {
		t.Errorf("Expected user sum %d == global %d", userSum, global)
	}
	if endpointSum != global {
		t.Errorf("Expected endpoint sum %d == global %d", endpointSum, global)
	}
	if global > atomic.LoadInt64(hits) {
		t.Errorf("Recorded %d requests but server saw %d", global, atomic.LoadInt64(hits))
	}
}

// TestTest_StopUser tests stopping one user leaves its siblings running
func TestTest_StopUser(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 3), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	errCh := runAsync(context.Background(), test)

	time.Sleep(150 * time.Millisecond)
	if err := test.StopUser("0"); err != nil {
		t.Fatalf("Failed to stop user: %v", err)
	}

	stopped, _ := test.User("0")
	<-stopped.Done()
	frozen := stopped.Results().TotalRequests()

	siblings := make(map[string]int64)
	for _, user := range test.Users()[1:] {
		siblings[user.ID()] = user.Results().TotalRequests()
	}

	time.Sleep(150 * time.Millisecond)

	if got := stopped.Results().TotalRequests(); got != frozen {
		t.Errorf("Stopped user kept recording: %d -> %d", frozen, got)
	}
	if stopped.Status() != types.StatusStopped {
		t.Errorf("Expected user 0 STOPPED, got: %s", stopped.Status())
	}
	for _, user := range test.Users()[1:] {
		if user.Status() != types.StatusRunning {
			t.Errorf("Expected user %s RUNNING, got: %s", user.ID(), user.Status())
		}
		if user.Results().TotalRequests() <= siblings[user.ID()] {
			t.Errorf("Expected user %s to keep sending requests", user.ID())
		}
	}

	test.Finish()
	waitRun(t, errCh)

	if test.Status() != types.StatusFinished {
		t.Errorf("Expected FINISHED, got: %s", test.Status())
	}
	if stopped.Status() != types.StatusStopped {
		t.Errorf("Expected user 0 to stay STOPPED, got: %s", stopped.Status())
	}
}

// TestTest_StopUnknownUser tests stopping a missing user returns ErrUserNotFound
func TestTest_StopUnknownUser(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 2), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	errCh := runAsync(context.Background(), test)
	time.Sleep(50 * time.Millisecond)

	err = test.StopUser("99")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}

	test.Stop()
	waitRun(t, errCh)
}

// TestTest_UnreachableHost tests transport failures are connection errors only
func TestTest_UnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	host := server.URL
	server.Close()

	test, err := NewTest(newTestConfig(host, 2), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(200 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	s := test.Results().Summary()
	if s.TotalRequests != 0 {
		t.Errorf("Expected 0 requests, got: %d", s.TotalRequests)
	}
	if s.TotalConnectionErrors == 0 {
		t.Error("Expected connection errors")
	}
	if test.Status() != types.StatusFinished {
		t.Errorf("Expected FINISHED, got: %s", test.Status())
	}
}

// TestTest_FailedResponses tests non 2xx/3xx responses count as failed requests
func TestTest_FailedResponses(t *testing.T) {
	server, _ := newTestServer(t, http.StatusInternalServerError)

	test, err := NewTest(newTestConfig(server.URL, 2), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(200 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	s := test.Results().Summary()
	if s.TotalRequests == 0 {
		t.Fatal("Expected requests")
	}
	if s.TotalFailed != s.TotalRequests {
		t.Errorf("Expected every request failed, got %d/%d", s.TotalFailed, s.TotalRequests)
	}
	if s.AverageResponseTimeMs != 0 {
		t.Errorf("Expected no latency from failed requests, got: %f", s.AverageResponseTimeMs)
	}
}

// TestTest_StopWinsOverFinish tests Stop followed by Finish ends STOPPED
func TestTest_StopWinsOverFinish(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 3), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	errCh := runAsync(context.Background(), test)
	time.Sleep(50 * time.Millisecond)

	test.Stop()
	test.Finish()
	waitRun(t, errCh)

	if test.Status() != types.StatusStopped {
		t.Errorf("Expected STOPPED, got: %s", test.Status())
	}
	for _, user := range test.Users() {
		if user.Status() != types.StatusStopped {
			t.Errorf("Expected user %s STOPPED, got: %s", user.ID(), user.Status())
		}
	}

	// Terminal status is sticky
	test.Finish()
	if test.Status() != types.StatusStopped {
		t.Errorf("Expected status to stay STOPPED, got: %s", test.Status())
	}
}

// TestTest_LateStopAfterFinish tests a Stop racing a Finish leaves the test
// and its users agreeing on the outcome
func TestTest_LateStopAfterFinish(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	for i := 0; i < 50; i++ {
		test, err := NewTest(newTestConfig(server.URL, 3), nil)
		if err != nil {
			t.Fatalf("Failed to create test: %v", err)
		}
		errCh := runAsync(context.Background(), test)
		time.Sleep(5 * time.Millisecond)

		test.Finish()
		time.Sleep(time.Duration(i*4) * time.Microsecond)
		test.Stop()
		waitRun(t, errCh)

		if test.Status() != types.StatusStopped {
			continue
		}
		for _, user := range test.Users() {
			if user.Status() != types.StatusStopped {
				t.Fatalf("Run %d: test STOPPED but user %s is %s", i, user.ID(), user.Status())
			}
		}
	}
}

// TestTest_StopBeforeRun tests a test stopped before Run ends immediately
func TestTest_StopBeforeRun(t *testing.T) {
	server, hits := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 3), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.Stop()
	waitRun(t, runAsync(context.Background(), test))

	if test.Status() != types.StatusStopped {
		t.Errorf("Expected STOPPED, got: %s", test.Status())
	}
	if atomic.LoadInt64(hits) != 0 {
		t.Errorf("Expected no requests, got: %d", atomic.LoadInt64(hits))
	}
}

// TestTest_ParentCancel tests cancelling the Run context stops the test
func TestTest_ParentCancel(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 2), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, test)
	time.Sleep(50 * time.Millisecond)
	cancel()
	waitRun(t, errCh)

	if test.Status() != types.StatusStopped {
		t.Errorf("Expected STOPPED, got: %s", test.Status())
	}
}

// TestTest_RunTwice tests Run can only be called once
func TestTest_RunTwice(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 1), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(50 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	if err := test.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got: %v", err)
	}
}

// TestTest_ZeroUsers tests a test without users finishes immediately
func TestTest_ZeroUsers(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 0), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	waitRun(t, runAsync(context.Background(), test))

	if test.Status() != types.StatusFinished {
		t.Errorf("Expected FINISHED, got: %s", test.Status())
	}
}

// TestTest_Subscribe tests subscribers receive the terminal status, even late ones
func TestTest_Subscribe(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 1), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	early := test.Handle().Subscribe()

	errCh := runAsync(context.Background(), test)
	time.Sleep(30 * time.Millisecond)
	test.Handle().Stop()
	waitRun(t, errCh)

	if got := <-early; got != types.StatusStopped {
		t.Errorf("Expected STOPPED from early subscriber, got: %s", got)
	}
	if got := <-test.Subscribe(); got != types.StatusStopped {
		t.Errorf("Expected STOPPED from late subscriber, got: %s", got)
	}
}

// TestTest_Observer tests the observer is ticked while running and called once at the end
func TestTest_Observer(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	test, err := NewTest(newTestConfig(server.URL, 2), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(250 * time.Millisecond)

	var mu sync.Mutex
	var reports []types.Report
	test.SetObserver(50*time.Millisecond, func(r types.Report) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, r)
	})

	waitRun(t, runAsync(context.Background(), test))

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 {
		t.Fatalf("Expected several observations, got: %d", len(reports))
	}
	last := reports[len(reports)-1]
	if last.Status != types.StatusFinished {
		t.Errorf("Expected final report FINISHED, got: %s", last.Status)
	}
	if last.EndedAt == nil || last.StartedAt == nil {
		t.Error("Expected timestamps in final report")
	}
	if len(last.Users) != 2 || len(last.Endpoints) != 2 {
		t.Errorf("Expected 2 users and 2 endpoints, got %d/%d", len(last.Users), len(last.Endpoints))
	}
}

// TestTest_RateLimit tests the shared limiter bounds throughput across users
func TestTest_RateLimit(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)

	config := newTestConfig(server.URL, 5)
	config.SleepRange = [2]int64{0, 0}
	config.RateLimit = 10

	test, err := NewTest(config, nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(500 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	// burst of 10 plus ~5 more over half a second
	if got := test.Results().TotalRequests(); got > 20 {
		t.Errorf("Expected at most 20 requests under the limiter, got: %d", got)
	}
}

// TestTest_HeadersReachServer tests global and endpoint headers are sent
func TestTest_HeadersReachServer(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Get("X-Env") + "|" + r.URL.Query().Get("q")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := newTestConfig(server.URL, 2)
	config.GlobalHeaders = map[string]string{"X-Env": "global"}
	config.Endpoints = []types.EndpointConfig{
		{Method: types.MethodGet, URL: "/a", Params: map[string]string{"q": "1"}},
		{Method: types.MethodGet, URL: "/b", Headers: map[string]string{"X-Env": "local"}},
	}

	test, err := NewTest(config, nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(200 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	mu.Lock()
	defer mu.Unlock()
	if got := seen["/a"]; got != "global|1" {
		t.Errorf("Expected /a to get global header and query, got: %q", got)
	}
	if got := seen["/b"]; got != "local|" {
		t.Errorf("Expected /b to get endpoint header, got: %q", got)
	}
}

// panickingLogger panics on the first request line of user 0
type panickingLogger struct {
	recordingLogger
	once sync.Once
}

func (l *panickingLogger) LogBuffered(level logrus.Level, message string) {
	if strings.HasPrefix(message, "User: [0] |") {
		l.once.Do(func() { panic("boom") })
	}
	l.recordingLogger.LogBuffered(level, message)
}

// TestTest_UserPanicIsolated tests a panicking user does not take down its siblings
func TestTest_UserPanicIsolated(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)
	logger := &panickingLogger{}

	test, err := NewTest(newTestConfig(server.URL, 3), logger)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(300 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	if !logger.contains("User [0] panicked: boom") {
		t.Error("Expected the panic to be logged")
	}
	for _, user := range test.Users()[1:] {
		if user.Results().TotalRequests() == 0 {
			t.Errorf("Expected user %s to keep running", user.ID())
		}
	}
	if test.Status() != types.StatusFinished {
		t.Errorf("Expected FINISHED, got: %s", test.Status())
	}
}

// TestTest_RequestLogLines tests request outcomes reach the buffered logger
func TestTest_RequestLogLines(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK)
	logger := &recordingLogger{}

	test, err := NewTest(newTestConfig(server.URL, 1), logger)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	test.SetRunTime(100 * time.Millisecond)
	waitRun(t, runAsync(context.Background(), test))

	if !logger.contains("User: [0] | 200") {
		t.Error("Expected a request line for user 0")
	}
	if !logger.contains("User [0] stopped") {
		t.Error("Expected user exit line")
	}
}

// TestTest_String tests the display format
func TestTest_String(t *testing.T) {
	test, err := NewTest(newTestConfig("http://localhost:1", 4), nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}

	s := test.String()
	for _, part := range []string{"Status [CREATED]", "Users [4]", "Host [http://localhost:1]", "Elapsed [n/a]"} {
		if !strings.Contains(s, part) {
			t.Errorf("Expected %q in %q", part, s)
		}
	}
}
