// Package worker is the remote side of a distributed test: it dials a master,
// receives control frames and drives a local test with them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studiowebux/swarmcli/internal/logging"
	"github.com/studiowebux/swarmcli/internal/stresstest"
	"github.com/studiowebux/swarmcli/internal/types"
)

const (
	// HandshakeTimeout bounds the dial to the master
	HandshakeTimeout = 45 * time.Second
	// WriteTimeout bounds a single frame write
	WriteTimeout = 10 * time.Second
)

var (
	// ErrNoTest is returned when a command needs a test and none was created
	ErrNoTest = errors.New("no test created")
)

// Logger is the buffered logger a worker writes to and flushes on exit
type Logger interface {
	logging.Logger
	FlushBuffer() error
}

// Recorder persists finished test reports
type Recorder interface {
	SaveReport(report types.Report, source string) (*stresstest.Run, error)
}

// Options configures a worker
type Options struct {
	MasterURL string
	Logger    Logger

	// Recorder stores every finished test; nil disables persistence
	Recorder Recorder

	// Observer receives test reports every ObserveInterval while a test runs
	Observer        stresstest.Observer
	ObserveInterval time.Duration

	Dialer *websocket.Dialer
}

// Worker connects to a master and turns its commands into operations on a
// held test. It holds at most one test at a time.
type Worker struct {
	id        string
	masterURL string
	logger    Logger
	recorder  Recorder
	observer  stresstest.Observer
	interval  time.Duration
	dialer    *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	test    *stresstest.Test
	started bool
	closing bool           // set once Run waits for outstanding tests
	tests   sync.WaitGroup // outstanding test runs

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New creates a worker
func New(opts Options) *Worker {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: HandshakeTimeout,
		}
	}

	var logger Logger = opts.Logger
	if logger == nil {
		logger = logging.NewBufferedLogger("")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:        uuid.NewString(),
		masterURL: opts.MasterURL,
		logger:    logger,
		recorder:  opts.Recorder,
		observer:  opts.Observer,
		interval:  opts.ObserveInterval,
		dialer:    dialer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the identifier announced to the master
func (w *Worker) ID() string {
	return w.id
}

// Test returns the held test, or nil
func (w *Worker) Test() *stresstest.Test {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.test
}

// Run connects to the master and handles commands until the worker is
// stopped, ctx is cancelled or the connection ends. It then waits for any
// running test and flushes the logger.
func (w *Worker) Run(ctx context.Context) error {
	stopOnParent := context.AfterFunc(ctx, w.Stop)
	defer stopOnParent()

	conn, resp, err := w.dialer.DialContext(w.ctx, w.masterURL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Connection failed: %v", err))
		w.flush()
		return fmt.Errorf("failed to connect to master %s: %w", w.masterURL, err)
	}

	w.writeMu.Lock()
	w.conn = conn
	w.writeMu.Unlock()

	if err := w.send(&types.Command{Type: types.CommandHello, WorkerID: w.id}); err != nil {
		w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Failed to greet master: %v", err))
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- w.readLoop(conn)
	}()

	var loopErr error
	select {
	case <-w.ctx.Done():
	case loopErr = <-loopDone:
	}

	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()

	w.logger.LogBuffered(logging.INFO, "Waiting for test to terminate")
	w.tests.Wait()

	w.closeConn()
	w.logger.LogBuffered(logging.INFO, "Terminating... Bye!")
	w.flush()

	return loopErr
}

// Stop stops the held test and ends Run
func (w *Worker) Stop() {
	_ = w.stopTest()
	w.cancel()
}

// Finish finishes the held test and ends Run
func (w *Worker) Finish() {
	_ = w.finishTest()
	w.cancel()
}

// readLoop handles inbound frames until the connection fails
func (w *Worker) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() != nil {
				return nil
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.logger.LogBuffered(logging.INFO, "Closing connection")
				err = nil
			} else {
				w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Connection lost: %v", err))
			}
			w.logger.LogBuffered(logging.INFO, "Stopping test")
			w.Stop()
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}
		w.handleMessage(data)
	}
}

// handleMessage decodes and applies one frame. Bad frames are logged and
// dropped without touching the held test.
func (w *Worker) handleMessage(data []byte) {
	cmd, err := types.DecodeCommand(data)
	if err != nil {
		w.logger.LogBuffered(logging.ERROR, "Invalid message")
		return
	}

	if err := w.handleCommand(cmd); err != nil {
		w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("%s failed: %v", cmd.Type, err))
	}
}

func (w *Worker) handleCommand(cmd *types.Command) error {
	switch cmd.Type {
	case types.CommandCreate:
		return w.createTest(cmd.TestConfig, cmd.UserCount)
	case types.CommandStart:
		w.logger.LogBuffered(logging.INFO, "Starting test")
		return w.startTest()
	case types.CommandStop:
		w.logger.LogBuffered(logging.INFO, "Stopping test")
		return w.stopTest()
	case types.CommandFinish:
		w.logger.LogBuffered(logging.INFO, "Finishing test")
		return w.finishTest()
	default:
		return fmt.Errorf("%w %q", types.ErrUnknownCommand, cmd.Type)
	}
}

// createTest replaces the held test. A replaced test that is still running
// is stopped. Remote tests run until told to stop or finish.
func (w *Worker) createTest(config *types.TestConfig, userCount int) error {
	config = config.Clone()
	if userCount > 0 {
		config.UserCount = userCount
	}

	test, err := stresstest.NewTest(config, w.logger)
	if err != nil {
		return err
	}
	test.SetRunTime(0)
	if w.observer != nil {
		test.SetObserver(w.interval, w.observer)
	}

	w.logger.LogBuffered(logging.INFO, fmt.Sprintf("Creating Test with [%d] users", config.UserCount))

	w.mu.Lock()
	old := w.test
	w.test = test
	w.started = false
	w.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return nil
}

func (w *Worker) startTest() error {
	w.mu.Lock()
	test := w.test
	if test == nil {
		w.mu.Unlock()
		return ErrNoTest
	}
	if w.started {
		w.mu.Unlock()
		return stresstest.ErrAlreadyStarted
	}
	if w.closing {
		w.mu.Unlock()
		return errors.New("worker is shutting down")
	}
	w.started = true
	w.tests.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.tests.Done()

		if err := test.Run(context.Background()); err != nil {
			w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Test failed: %v", err))
			return
		}
		w.logger.LogBuffered(logging.INFO, fmt.Sprintf("Test ended: %s", test))
		w.report(test.Report())
	}()
	return nil
}

func (w *Worker) stopTest() error {
	test := w.Test()
	if test == nil {
		return ErrNoTest
	}
	test.Stop()
	return nil
}

func (w *Worker) finishTest() error {
	test := w.Test()
	if test == nil {
		return ErrNoTest
	}
	test.Finish()
	return nil
}

// report sends a finished test's report upstream and stores it
func (w *Worker) report(report types.Report) {
	if err := w.send(&types.Command{Type: types.CommandReport, WorkerID: w.id, Report: &report}); err != nil {
		w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Failed to send report: %v", err))
	}

	if w.recorder != nil {
		run, err := w.recorder.SaveReport(report, w.id)
		if err != nil {
			w.logger.LogBuffered(logging.ERROR, fmt.Sprintf("Failed to save report: %v", err))
			return
		}
		w.logger.LogBuffered(logging.INFO, fmt.Sprintf("Saved run [%d]", run.ID))
	}
}

// send writes one frame. Writes are serialized since the connection
// supports a single concurrent writer.
func (w *Worker) send(cmd *types.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.conn == nil {
		return errors.New("not connected")
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *Worker) closeConn() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.conn == nil {
		return
	}
	// Ignore close errors as the master may already be gone
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.conn.Close()
	w.conn = nil
}

func (w *Worker) flush() {
	if err := w.logger.FlushBuffer(); err != nil {
		fmt.Printf("Warning: failed to flush log buffer: %v\n", err)
	}
}
