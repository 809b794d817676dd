package master

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/types"
	"github.com/studiowebux/swarmcli/internal/worker"
)

func newTestMaster(t *testing.T) (*Master, *httptest.Server) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := New(logger)
	server := httptest.NewServer(m.Handler())
	t.Cleanup(server.Close)
	return m, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	resp, err := http.Post(url, "application/json", reader)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// connectWorker starts a worker against the master and waits until it is registered
func connectWorker(t *testing.T, ctx context.Context, m *Master, server *httptest.Server) *worker.Worker {
	t.Helper()

	before := len(m.Workers())
	w := worker.New(worker.Options{
		MasterURL: wsURL(server),
		Logger:    logging.NewWriterLogger(io.Discard),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		w.Stop()
		<-done
	})

	require.Eventually(t, func() bool {
		workers := m.Workers()
		return len(workers) == before+1 && workers[before].WorkerID == w.ID()
	}, 2*time.Second, 10*time.Millisecond)
	return w
}

func TestSplitUsers(t *testing.T) {
	tests := []struct {
		total, workers int
		expected       []int
	}{
		{10, 2, []int{5, 5}},
		{5, 2, []int{3, 2}},
		{7, 3, []int{3, 2, 2}},
		{2, 4, []int{1, 1, 0, 0}},
		{0, 2, []int{0, 0}},
		{5, 0, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SplitUsers(tt.total, tt.workers), "total=%d workers=%d", tt.total, tt.workers)
	}
}

func TestMaster_DistributedRun(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	m, server := newTestMaster(t)
	ctx := context.Background()
	first := connectWorker(t, ctx, m, server)
	second := connectWorker(t, ctx, m, server)

	config := types.TestConfig{
		Name:       "distributed",
		UserCount:  5,
		SleepRange: [2]int64{1, 5},
		Host:       target.URL,
		Endpoints:  []types.EndpointConfig{{Method: types.MethodGet, URL: "/"}},
	}
	resp := post(t, server.URL+"/api/tests", config)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Len(t, created.Assignments, 2)

	require.Eventually(t, func() bool {
		return first.Test() != nil && second.Test() != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, first.Test().UserCount())
	assert.Equal(t, 2, second.Test().UserCount())

	resp = post(t, server.URL+"/api/tests/start", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		return first.Test().Status() == types.StatusRunning && second.Test().Status() == types.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	resp = post(t, server.URL+"/api/tests/finish", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(m.Reports()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	merged := m.Report()
	assert.Equal(t, 5, merged.UserCount)
	assert.Equal(t, types.StatusFinished, merged.Status)
	assert.Positive(t, merged.Results.TotalRequests)
	assert.Equal(t,
		first.Test().Results().TotalRequests()+second.Test().Results().TotalRequests(),
		merged.Results.TotalRequests)

	httpResp, err := http.Get(server.URL + "/api/reports")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	var reports ReportsResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&reports))
	assert.Len(t, reports.Workers, 2)
	assert.Equal(t, 5, reports.Merged.UserCount)

	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "swarmcli_users 5")
}

func TestMaster_StopReachesWorkers(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	m, server := newTestMaster(t)
	w := connectWorker(t, context.Background(), m, server)

	_, err := m.CreateTest(context.Background(), &types.TestConfig{
		UserCount:  2,
		SleepRange: [2]int64{1, 5},
		Host:       target.URL,
		Endpoints:  []types.EndpointConfig{{Method: types.MethodGet, URL: "/"}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return w.Test() != nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return w.Test().Status() == types.StatusRunning }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop(context.Background()))
	require.Eventually(t, func() bool { return w.Test().Status() == types.StatusStopped }, 2*time.Second, 10*time.Millisecond)
}

func TestMaster_APIErrors(t *testing.T) {
	_, server := newTestMaster(t)

	valid := types.TestConfig{
		UserCount:  1,
		SleepRange: [2]int64{0, 0},
		Host:       "http://localhost",
		Endpoints:  []types.EndpointConfig{{Method: types.MethodGet, URL: "/"}},
	}

	resp := post(t, server.URL+"/api/tests", valid)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no workers connected")

	resp, err := http.Post(server.URL+"/api/tests", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	invalid := valid
	invalid.Host = "localhost"
	resp = post(t, server.URL+"/api/tests", invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, server.URL+"/api/tests/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no test created")

	resp = post(t, server.URL+"/api/tests/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no workers connected")
}

func TestMaster_WorkerDisconnect(t *testing.T) {
	m, server := newTestMaster(t)

	ctx, cancel := context.WithCancel(context.Background())
	connectWorker(t, ctx, m, server)
	require.Len(t, m.Workers(), 1)

	cancel()
	require.Eventually(t, func() bool { return len(m.Workers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
