package stresstest

import (
	"sync"

	"github.com/studiowebux/swarmcli/internal/types"
)

// statusCell is the status shared between a running task and its handles
type statusCell struct {
	mu     sync.RWMutex
	status types.Status
}

func newStatusCell() *statusCell {
	return &statusCell{status: types.StatusCreated}
}

func (c *statusCell) get() types.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// start moves CREATED to RUNNING. It returns false if the cell already left
// CREATED, so RUNNING is entered at most once.
func (c *statusCell) start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != types.StatusCreated {
		return false
	}
	c.status = types.StatusRunning
	return true
}

// stop always wins
func (c *statusCell) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = types.StatusStopped
}

// finish sets FINISHED unless the cell is already STOPPED
func (c *statusCell) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == types.StatusStopped {
		return
	}
	c.status = types.StatusFinished
}

// intent records how a test was asked to end. Stop wins over finish.
type intent int32

const (
	intentNone intent = iota
	intentFinish
	intentStop
)

type intentCell struct {
	mu sync.Mutex
	v  intent
}

func (c *intentCell) set(v intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.v {
		c.v = v
	}
}

func (c *intentCell) get() intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}
