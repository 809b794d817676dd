package tui

import (
	"testing"
	"time"

	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/types"
)

// CreateTestHandle creates a test that has not been started. The host is
// never contacted.
func CreateTestHandle(t *testing.T, users int) (*stresstest.Test, stresstest.TestHandle) {
	t.Helper()

	test, err := stresstest.NewTest(&types.TestConfig{
		Name:       "monitor",
		UserCount:  users,
		SleepRange: [2]int64{10, 20},
		Host:       "http://127.0.0.1:1",
		Endpoints: []types.EndpointConfig{
			{Method: types.MethodGet, URL: "/users"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}
	t.Cleanup(test.Stop)

	return test, test.Handle()
}

// sampleRun creates a stored run with one endpoint and one user
func sampleRun(id int64, name string) *stresstest.Run {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &stresstest.Run{
		ID:        id,
		RunID:     "run-" + name,
		Name:      name,
		Host:      "http://localhost:8080",
		Source:    "local",
		Status:    types.StatusFinished,
		UserCount: 2,
		StartedAt: &started,
		ElapsedMs: 1500,
		CreatedAt: started,
		Results: types.ResultsSummary{
			TotalRequests:         10,
			TotalFailed:           2,
			TotalResponseTimeMs:   80,
			AverageResponseTimeMs: 10,
			RequestsPerSecond:     6.67,
		},
		Endpoints: []types.EndpointReport{
			{Method: types.MethodGet, URL: "/users", Results: types.ResultsSummary{TotalRequests: 10}},
		},
		Users: []types.UserReport{
			{ID: "0123456789abcdef", Status: types.StatusFinished, Results: types.ResultsSummary{TotalRequests: 10}},
		},
	}
}

// AssertModelField verifies that a model field has the expected value
func AssertModelField[T comparable](t *testing.T, fieldName string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", fieldName, got, want)
	}
}

// AssertNoError verifies that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
