package stresstest

import (
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

// TestHandle controls and observes a test from another goroutine. It only
// references the test's control surface and never owns the running task.
type TestHandle struct {
	test *Test
}

func (h TestHandle) Stop()                          { h.test.Stop() }
func (h TestHandle) Finish()                        { h.test.Finish() }
func (h TestHandle) StopUser(id string) error       { return h.test.StopUser(id) }
func (h TestHandle) Status() types.Status           { return h.test.Status() }
func (h TestHandle) Done() <-chan struct{}          { return h.test.Done() }
func (h TestHandle) Subscribe() <-chan types.Status { return h.test.Subscribe() }
func (h TestHandle) Report() types.Report           { return h.test.Report() }

// ElapsedTime returns the elapsed time once the test has ended
func (h TestHandle) ElapsedTime() (time.Duration, bool) {
	return h.test.ElapsedTime()
}

// Users returns handles to every registered user
func (h TestHandle) Users() []UserHandle {
	users := h.test.Users()
	handles := make([]UserHandle, 0, len(users))
	for _, u := range users {
		handles = append(handles, u.Handle())
	}
	return handles
}

func (h TestHandle) AddResponseTime(ms int64)             { h.test.AddResponseTime(ms) }
func (h TestHandle) AddFailed()                           { h.test.AddFailed() }
func (h TestHandle) AddConnectionError()                  { h.test.AddConnectionError() }
func (h TestHandle) CalculateRates(elapsed time.Duration) { h.test.CalculateRates(elapsed) }
func (h TestHandle) Summary() types.ResultsSummary        { return h.test.Summary() }

// UserHandle controls and observes a single user
type UserHandle struct {
	user *User
}

func (h UserHandle) ID() string               { return h.user.ID() }
func (h UserHandle) Stop()                    { h.user.Stop() }
func (h UserHandle) Finish()                  { h.user.Finish() }
func (h UserHandle) Status() types.Status     { return h.user.Status() }
func (h UserHandle) Done() <-chan struct{}    { return h.user.Done() }
func (h UserHandle) Report() types.UserReport { return h.user.Report() }

func (h UserHandle) AddResponseTime(ms int64)             { h.user.AddResponseTime(ms) }
func (h UserHandle) AddFailed()                           { h.user.AddFailed() }
func (h UserHandle) AddConnectionError()                  { h.user.AddConnectionError() }
func (h UserHandle) CalculateRates(elapsed time.Duration) { h.user.CalculateRates(elapsed) }
func (h UserHandle) Summary() types.ResultsSummary        { return h.user.Summary() }

var (
	_ Updatable = (*Results)(nil)
	_ Updatable = (*Endpoint)(nil)
	_ Updatable = (*User)(nil)
	_ Updatable = (*Test)(nil)
	_ Updatable = TestHandle{}
	_ Updatable = UserHandle{}
)
