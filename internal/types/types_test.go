package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *TestConfig {
	return &TestConfig{
		UserCount:  2,
		SleepRange: [2]int64{10, 20},
		Host:       "http://localhost:8080",
		Endpoints: []EndpointConfig{
			{Method: MethodGet, URL: "/"},
		},
	}
}

func TestTestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *TestConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(c *TestConfig) {}},
		{name: "missing host", mutate: func(c *TestConfig) { c.Host = "" }, wantErr: "host is required"},
		{name: "bad scheme", mutate: func(c *TestConfig) { c.Host = "localhost" }, wantErr: "host must start"},
		{name: "negative users", mutate: func(c *TestConfig) { c.UserCount = -1 }, wantErr: "user count"},
		{name: "inverted sleep", mutate: func(c *TestConfig) { c.SleepRange = [2]int64{50, 10} }, wantErr: "cannot exceed"},
		{name: "no endpoints", mutate: func(c *TestConfig) { c.Endpoints = nil }, wantErr: "at least one endpoint"},
		{name: "bad method", mutate: func(c *TestConfig) { c.Endpoints[0].Method = "PATCH" }, wantErr: "unsupported method"},
		{name: "empty url", mutate: func(c *TestConfig) { c.Endpoints[0].URL = "" }, wantErr: "url is required"},
		{name: "negative rate", mutate: func(c *TestConfig) { c.RateLimit = -1 }, wantErr: "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTestConfig_Durations(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, time.Duration(0), cfg.GetRunTime())
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())

	cfg.RunTimeSec = 3
	cfg.RequestTimeoutSec = 2
	assert.Equal(t, 3*time.Second, cfg.GetRunTime())
	assert.Equal(t, 2*time.Second, cfg.GetRequestTimeout())

	lo, hi := cfg.GetSleepRange()
	assert.Equal(t, 10*time.Millisecond, lo)
	assert.Equal(t, 20*time.Millisecond, hi)
}

func TestTestConfig_CloneIsDeep(t *testing.T) {
	cfg := validConfig()
	cfg.GlobalHeaders = map[string]string{"X-A": "1"}
	cfg.Endpoints[0].Headers = map[string]string{"X-B": "2"}

	clone := cfg.Clone()
	clone.GlobalHeaders["X-A"] = "changed"
	clone.Endpoints[0].Headers["X-B"] = "changed"
	clone.Endpoints[0].URL = "/other"

	assert.Equal(t, "1", cfg.GlobalHeaders["X-A"])
	assert.Equal(t, "2", cfg.Endpoints[0].Headers["X-B"])
	assert.Equal(t, "/", cfg.Endpoints[0].URL)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusCreated.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusStopped.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
}

func TestResultsSummary_Merge(t *testing.T) {
	a := ResultsSummary{TotalRequests: 2, TotalResponseTimeMs: 20, RequestsPerSecond: 1}
	b := ResultsSummary{TotalRequests: 2, TotalFailed: 1, TotalResponseTimeMs: 40, TotalConnectionErrors: 3, RequestsPerSecond: 2}

	a.Merge(b)

	assert.Equal(t, int64(4), a.TotalRequests)
	assert.Equal(t, int64(1), a.TotalFailed)
	assert.Equal(t, int64(3), a.TotalConnectionErrors)
	assert.Equal(t, 15.0, a.AverageResponseTimeMs)
	assert.Equal(t, 3.0, a.RequestsPerSecond)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"Create","user_count":4,"test_config":{"host":"http://x","user_count":1,"sleep_range":[0,0],"endpoints":[{"method":"GET","url":"/"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, CommandCreate, cmd.Type)
	assert.Equal(t, 4, cmd.UserCount)
	require.NotNil(t, cmd.TestConfig)
	assert.Equal(t, "http://x", cmd.TestConfig.Host)

	cmd, err = DecodeCommand([]byte(`{"type":"Start"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandStart, cmd.Type)

	_, err = DecodeCommand([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{"type":"Explode"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeCommand([]byte(`{"type":"Create"}`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{}`))
	assert.Error(t, err)
}
