package stresstest

import (
	"fmt"
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

// Endpoint is an immutable target route with results shared by all users
type Endpoint struct {
	method  types.Method
	url     string
	headers map[string]string
	params  map[string]string
	body    string
	results *Results
}

// NewEndpoint builds an endpoint from its configuration
func NewEndpoint(cfg types.EndpointConfig) *Endpoint {
	return &Endpoint{
		method:  cfg.Method,
		url:     cfg.URL,
		headers: cfg.Headers,
		params:  cfg.Params,
		body:    cfg.Body,
		results: NewResults(),
	}
}

func (e *Endpoint) Method() types.Method       { return e.method }
func (e *Endpoint) URL() string                { return e.url }
func (e *Endpoint) Headers() map[string]string { return e.headers }
func (e *Endpoint) Params() map[string]string  { return e.params }
func (e *Endpoint) Body() string               { return e.body }
func (e *Endpoint) Results() *Results          { return e.results }

func (e *Endpoint) AddResponseTime(ms int64)             { e.results.AddResponseTime(ms) }
func (e *Endpoint) AddFailed()                           { e.results.AddFailed() }
func (e *Endpoint) AddConnectionError()                  { e.results.AddConnectionError() }
func (e *Endpoint) CalculateRates(elapsed time.Duration) { e.results.CalculateRates(elapsed) }
func (e *Endpoint) Summary() types.ResultsSummary        { return e.results.Summary() }

// Report returns the endpoint's results snapshot
func (e *Endpoint) Report() types.EndpointReport {
	return types.EndpointReport{
		Method:  e.method,
		URL:     e.url,
		Results: e.results.Summary(),
	}
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s %s | %s", e.method, e.url, e.results)
}
