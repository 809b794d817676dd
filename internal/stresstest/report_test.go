package stresstest

import (
	"testing"
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

// TestMergeReports tests worker reports are combined per endpoint
func TestMergeReports(t *testing.T) {
	t0 := time.Now()
	t1 := t0.Add(time.Second)
	t2 := t0.Add(3 * time.Second)
	t3 := t0.Add(4 * time.Second)

	a := types.Report{
		Name: "load", Host: "http://h", Status: types.StatusFinished, UserCount: 3,
		StartedAt: &t1, EndedAt: &t2, ElapsedMs: 2000,
		Results: types.ResultsSummary{TotalRequests: 10, TotalResponseTimeMs: 100},
		Endpoints: []types.EndpointReport{
			{Method: types.MethodGet, URL: "/a", Results: types.ResultsSummary{TotalRequests: 10, TotalResponseTimeMs: 100}},
		},
	}
	b := types.Report{
		Name: "load", Host: "http://h", Status: types.StatusStopped, UserCount: 2,
		StartedAt: &t0, EndedAt: &t3, ElapsedMs: 4000,
		Results: types.ResultsSummary{TotalRequests: 30, TotalFailed: 3, TotalResponseTimeMs: 500},
		Endpoints: []types.EndpointReport{
			{Method: types.MethodGet, URL: "/a", Results: types.ResultsSummary{TotalRequests: 20, TotalResponseTimeMs: 300}},
			{Method: types.MethodPost, URL: "/a", Results: types.ResultsSummary{TotalRequests: 10, TotalFailed: 3, TotalResponseTimeMs: 200}},
		},
	}

	merged := MergeReports([]types.Report{a, b})

	if merged.UserCount != 5 {
		t.Errorf("Expected 5 users, got: %d", merged.UserCount)
	}
	if merged.Status != types.StatusStopped {
		t.Errorf("Expected STOPPED when any worker stopped, got: %s", merged.Status)
	}
	if merged.Results.TotalRequests != 40 || merged.Results.TotalFailed != 3 {
		t.Errorf("Unexpected totals: %+v", merged.Results)
	}
	if !merged.StartedAt.Equal(t0) || !merged.EndedAt.Equal(t3) {
		t.Errorf("Expected earliest start and latest end, got %v - %v", merged.StartedAt, merged.EndedAt)
	}
	if merged.ElapsedMs != 4000 {
		t.Errorf("Expected 4000ms, got: %d", merged.ElapsedMs)
	}
	if len(merged.Endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got: %d", len(merged.Endpoints))
	}
	if merged.Endpoints[0].Results.TotalRequests != 30 {
		t.Errorf("Expected GET /a to merge to 30, got: %d", merged.Endpoints[0].Results.TotalRequests)
	}
}

// TestMergeReports_Users tests users of every worker are kept with distinct ids
func TestMergeReports_Users(t *testing.T) {
	a := types.Report{Status: types.StatusFinished, Users: []types.UserReport{
		{ID: "0", Status: types.StatusFinished, Results: types.ResultsSummary{TotalRequests: 4}},
		{ID: "1", Status: types.StatusFinished},
	}}
	b := types.Report{Status: types.StatusFinished, Users: []types.UserReport{
		{ID: "0", Status: types.StatusStopped, Results: types.ResultsSummary{TotalRequests: 7}},
	}}

	merged := MergeReports([]types.Report{a, b})

	if len(merged.Users) != 3 {
		t.Fatalf("Expected 3 users, got: %d", len(merged.Users))
	}
	want := []string{"0/0", "0/1", "1/0"}
	for i, id := range want {
		if merged.Users[i].ID != id {
			t.Errorf("Expected user %d id %s, got: %s", i, id, merged.Users[i].ID)
		}
	}
	if merged.Users[2].Results.TotalRequests != 7 || merged.Users[2].Status != types.StatusStopped {
		t.Errorf("Unexpected user results: %+v", merged.Users[2])
	}
	if a.Users[0].ID != "0" {
		t.Errorf("Expected input report untouched, got id: %s", a.Users[0].ID)
	}
}

// TestMergeReports_Empty tests merging nothing yields an empty report
func TestMergeReports_Empty(t *testing.T) {
	merged := MergeReports(nil)
	if merged.UserCount != 0 || merged.Status != "" {
		t.Errorf("Expected zero report, got: %+v", merged)
	}
}
