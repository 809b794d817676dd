package stresstest

import (
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

// Run represents a stored load test run record
type Run struct {
	ID        int64                `json:"id" yaml:"id"`
	RunID     string               `json:"run_id" yaml:"run_id"`
	Name      string               `json:"name" yaml:"name"`
	Host      string               `json:"host" yaml:"host"`
	Source    string               `json:"source" yaml:"source"` // "local" or the worker id
	Status    types.Status         `json:"status" yaml:"status"`
	UserCount int                  `json:"user_count" yaml:"user_count"`
	StartedAt *time.Time           `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt   *time.Time           `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	ElapsedMs int64                `json:"elapsed_ms" yaml:"elapsed_ms"`
	Results   types.ResultsSummary `json:"results" yaml:"results"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`

	Endpoints []types.EndpointReport `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Users     []types.UserReport     `json:"users,omitempty" yaml:"users,omitempty"`
}

// IsCompleted returns true if the run reached a terminal status
func (r *Run) IsCompleted() bool {
	return r.Status.IsTerminal()
}

// Report converts the stored run back into a report
func (r *Run) Report() types.Report {
	return types.Report{
		Name:      r.Name,
		Host:      r.Host,
		Status:    r.Status,
		UserCount: r.UserCount,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		ElapsedMs: r.ElapsedMs,
		Results:   r.Results,
		Endpoints: r.Endpoints,
		Users:     r.Users,
	}
}
