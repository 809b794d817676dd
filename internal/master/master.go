// Package master is the controlling side of a distributed test. Workers
// connect to it over WebSocket; it splits the user count across them,
// relays control commands and merges the reports they send back.
package master

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/studiowebux/swarmcli/internal/metrics"
	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/types"
)

const (
	// WriteTimeout bounds a single frame write to a worker
	WriteTimeout = 10 * time.Second
	// ShutdownTimeout bounds the graceful HTTP shutdown
	ShutdownTimeout = 5 * time.Second
)

var (
	// ErrNoWorkers is returned when a command needs at least one connected worker
	ErrNoWorkers = errors.New("no workers connected")
	// ErrNoTest is returned when start is requested before a test was created
	ErrNoTest = errors.New("no test created")
)

// WorkerInfo describes a connected worker
type WorkerInfo struct {
	ID          string    `json:"id"`
	WorkerID    string    `json:"worker_id,omitempty"` // announced by the worker in Hello
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Users       int       `json:"users"`
}

// workerConn is one connected worker
type workerConn struct {
	info    WorkerInfo
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *workerConn) send(cmd *types.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Master tracks connected workers and the test they run
type Master struct {
	logger   *logrus.Logger
	metrics  *metrics.Collector
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	workers map[string]*workerConn
	order   []string // connection order, used for deterministic splits
	config  *types.TestConfig
	reports map[string]types.Report // keyed by connection id
}

// New creates a master
func New(logger *logrus.Logger) *Master {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Master{
		logger:  logger,
		metrics: metrics.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		workers: make(map[string]*workerConn),
		reports: make(map[string]types.Report),
	}
}

// Metrics returns the collector fed with merged reports
func (m *Master) Metrics() *metrics.Collector {
	return m.metrics
}

// ListenAndServe serves the hub and the control API on addr until ctx is done
func (m *Master) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: m.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		m.logger.WithField("addr", addr).Info("Master listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	m.closeWorkers()
	return server.Shutdown(shutdownCtx)
}

// handleWorker upgrades a worker connection and reads its frames until it
// disconnects
func (m *Master) handleWorker(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.WithError(err).Warn("Worker upgrade failed")
		return
	}

	wc := &workerConn{
		info: WorkerInfo{
			ID:          uuid.NewString(),
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: time.Now(),
		},
		conn: conn,
	}
	log := m.logger.WithFields(logrus.Fields{"worker": wc.info.ID, "remote": r.RemoteAddr})

	m.mu.Lock()
	m.workers[wc.info.ID] = wc
	m.order = append(m.order, wc.info.ID)
	m.mu.Unlock()
	log.Info("Worker connected")

	defer func() {
		m.unregister(wc.info.ID)
		conn.Close()
		log.Info("Worker disconnected")
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Worker read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		cmd, err := types.DecodeCommand(data)
		if err != nil {
			log.WithError(err).Error("Invalid message")
			continue
		}

		switch cmd.Type {
		case types.CommandHello:
			m.mu.Lock()
			wc.info.WorkerID = cmd.WorkerID
			m.mu.Unlock()
			log.WithField("worker_id", cmd.WorkerID).Info("Worker registered")
		case types.CommandReport:
			m.recordReport(wc.info.ID, *cmd.Report)
			log.WithFields(logrus.Fields{
				"status":   cmd.Report.Status,
				"requests": cmd.Report.Results.TotalRequests,
			}).Info("Worker report received")
		default:
			log.WithField("type", cmd.Type).Error("Unexpected command from worker")
		}
	}
}

func (m *Master) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.workers, id)
	for i, wid := range m.order {
		if wid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Master) recordReport(id string, report types.Report) {
	m.mu.Lock()
	m.reports[id] = report
	m.mu.Unlock()

	m.metrics.Observe(m.Report())
}

// Workers returns the connected workers in connection order
func (m *Master) Workers() []WorkerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]WorkerInfo, 0, len(m.order))
	for _, id := range m.order {
		infos = append(infos, m.workers[id].info)
	}
	return infos
}

// Reports returns the latest report of every worker, keyed by connection id
func (m *Master) Reports() map[string]types.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]types.Report, len(m.reports))
	for id, r := range m.reports {
		out[id] = r
	}
	return out
}

// Report merges the latest report of every worker
func (m *Master) Report() types.Report {
	reports := m.Reports()

	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]types.Report, 0, len(ids))
	for _, id := range ids {
		list = append(list, reports[id])
	}
	return stresstest.MergeReports(list)
}

// CreateTest splits config's users across the connected workers and sends
// each its share. It returns the number of users assigned per worker.
func (m *Master) CreateTest(ctx context.Context, config *types.TestConfig) (map[string]int, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test config: %w", err)
	}

	m.mu.Lock()
	targets := make([]*workerConn, 0, len(m.order))
	for _, id := range m.order {
		targets = append(targets, m.workers[id])
	}
	if len(targets) == 0 {
		m.mu.Unlock()
		return nil, ErrNoWorkers
	}

	shares := SplitUsers(config.UserCount, len(targets))
	assignments := make(map[string]int, len(targets))
	for i, wc := range targets {
		wc.info.Users = shares[i]
		assignments[wc.info.ID] = shares[i]
	}
	m.config = config.Clone()
	m.reports = make(map[string]types.Report)
	m.mu.Unlock()

	m.metrics.Reset()

	g, gctx := errgroup.WithContext(ctx)
	for i, wc := range targets {
		share := config.Clone()
		share.UserCount = shares[i]
		cmd := &types.Command{Type: types.CommandCreate, TestConfig: share, UserCount: shares[i]}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := wc.send(cmd); err != nil {
				return fmt.Errorf("worker %s: %w", wc.info.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return assignments, err
	}

	m.logger.WithFields(logrus.Fields{"users": config.UserCount, "workers": len(targets)}).Info("Test created")
	return assignments, nil
}

// Start tells every worker to start its test
func (m *Master) Start(ctx context.Context) error {
	m.mu.RLock()
	created := m.config != nil
	m.mu.RUnlock()
	if !created {
		return ErrNoTest
	}
	return m.broadcast(ctx, &types.Command{Type: types.CommandStart})
}

// Stop tells every worker to stop its test
func (m *Master) Stop(ctx context.Context) error {
	return m.broadcast(ctx, &types.Command{Type: types.CommandStop})
}

// Finish tells every worker to finish its test
func (m *Master) Finish(ctx context.Context) error {
	return m.broadcast(ctx, &types.Command{Type: types.CommandFinish})
}

func (m *Master) broadcast(ctx context.Context, cmd *types.Command) error {
	m.mu.RLock()
	targets := make([]*workerConn, 0, len(m.workers))
	for _, id := range m.order {
		targets = append(targets, m.workers[id])
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, wc := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := wc.send(cmd); err != nil {
				return fmt.Errorf("worker %s: %w", wc.info.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{"command": cmd.Type, "workers": len(targets)}).Info("Command sent")
	return nil
}

func (m *Master) closeWorkers() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, wc := range m.workers {
		wc.writeMu.Lock()
		_ = wc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "master shutting down"),
			time.Now().Add(time.Second))
		wc.writeMu.Unlock()
	}
}

// SplitUsers divides total users across n workers. Every worker gets the
// same share and the remainder goes to the first workers.
func SplitUsers(total, n int) []int {
	if n <= 0 {
		return nil
	}

	shares := make([]int, n)
	for i := range shares {
		shares[i] = total / n
		if i < total%n {
			shares[i]++
		}
	}
	return shares
}
