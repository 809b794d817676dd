package stresstest

import (
	"fmt"

	"github.com/studiowebux/swarmcli/internal/types"
)

// Report returns a hierarchical snapshot of the test: global results, each
// endpoint and each user with its per-endpoint results
func (t *Test) Report() types.Report {
	t.mu.RLock()
	started, ended := t.startedAt, t.endedAt
	t.mu.RUnlock()

	report := types.Report{
		Name:      t.name,
		Host:      t.host,
		Status:    t.Status(),
		UserCount: t.userCount,
		Results:   t.results.Summary(),
		Endpoints: make([]types.EndpointReport, 0, len(t.endpoints)),
	}

	if !started.IsZero() {
		report.StartedAt = &started
	}
	if !ended.IsZero() {
		report.EndedAt = &ended
	}
	if elapsed, ok := t.ElapsedTime(); ok {
		report.ElapsedMs = elapsed.Milliseconds()
	}

	for _, ep := range t.endpoints {
		report.Endpoints = append(report.Endpoints, ep.Report())
	}
	for _, user := range t.Users() {
		report.Users = append(report.Users, user.Report())
	}

	return report
}

// MergeReports combines the reports of several workers running the same
// test definition into one report. User ids are prefixed with the report's
// position so that users of different workers stay distinct.
func MergeReports(reports []types.Report) types.Report {
	var merged types.Report
	if len(reports) == 0 {
		return merged
	}

	merged.Name = reports[0].Name
	merged.Host = reports[0].Host
	merged.Status = types.StatusFinished

	type key struct {
		method types.Method
		url    string
	}
	index := make(map[key]int)

	for i, r := range reports {
		merged.UserCount += r.UserCount
		merged.Results.Merge(r.Results)
		if r.Status == types.StatusStopped {
			merged.Status = types.StatusStopped
		}
		if r.ElapsedMs > merged.ElapsedMs {
			merged.ElapsedMs = r.ElapsedMs
		}
		if r.StartedAt != nil && (merged.StartedAt == nil || r.StartedAt.Before(*merged.StartedAt)) {
			merged.StartedAt = r.StartedAt
		}
		if r.EndedAt != nil && (merged.EndedAt == nil || r.EndedAt.After(*merged.EndedAt)) {
			merged.EndedAt = r.EndedAt
		}

		for _, u := range r.Users {
			u.ID = fmt.Sprintf("%d/%s", i, u.ID)
			merged.Users = append(merged.Users, u)
		}

		for _, ep := range r.Endpoints {
			k := key{ep.Method, ep.URL}
			if i, ok := index[k]; ok {
				merged.Endpoints[i].Results.Merge(ep.Results)
				continue
			}
			index[k] = len(merged.Endpoints)
			merged.Endpoints = append(merged.Endpoints, ep)
		}
	}

	return merged
}
