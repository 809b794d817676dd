package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Levels accepted by LogBuffered
const (
	INFO  = logrus.InfoLevel
	ERROR = logrus.ErrorLevel
)

const (
	// FilePermissions is the mode used when the log file is created
	FilePermissions = 0644
	// DefaultFlushInterval is used by Start when no interval is given
	DefaultFlushInterval = 5 * time.Second
)

// Logger is the buffered-log contract consumed by tests, users and workers
type Logger interface {
	LogBuffered(level logrus.Level, message string)
}

// Discard drops every line
var Discard Logger = discard{}

type discard struct{}

func (discard) LogBuffered(logrus.Level, string) {}

// Entry is one buffered log line
type Entry struct {
	Time    time.Time
	Level   logrus.Level
	Message string
}

// BufferedLogger accumulates log lines in memory and writes them to a file
// on FlushBuffer. LogBuffered never touches the file and never blocks on I/O.
type BufferedLogger struct {
	mu      sync.Mutex
	entries []Entry
	path    string
	out     io.Writer      // used instead of path when set
	echo    *logrus.Logger // optional live mirror
	flushMu sync.Mutex     // serializes writers to the sink
}

// NewBufferedLogger creates a logger that flushes into the file at path.
// An empty path discards flushed entries.
func NewBufferedLogger(path string) *BufferedLogger {
	return &BufferedLogger{
		entries: make([]Entry, 0, 256),
		path:    path,
	}
}

// NewWriterLogger creates a logger that flushes into w
func NewWriterLogger(w io.Writer) *BufferedLogger {
	return &BufferedLogger{
		entries: make([]Entry, 0, 256),
		out:     w,
	}
}

// SetEcho mirrors every buffered line to a live logger as it is recorded
func (l *BufferedLogger) SetEcho(echo *logrus.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echo = echo
}

// LogBuffered appends a line to the in-memory buffer
func (l *BufferedLogger) LogBuffered(level logrus.Level, message string) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: time.Now(), Level: level, Message: message})
	echo := l.echo
	l.mu.Unlock()

	if echo != nil {
		echo.Log(level, message)
	}
}

// Entries returns a copy of the lines that have not been flushed yet
func (l *BufferedLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Len returns the number of pending lines
func (l *BufferedLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// FlushBuffer writes all pending lines to the sink. The sink is opened for
// append and closed before returning, whether or not the write succeeded.
// Lines that could not be written are put back at the front of the buffer.
func (l *BufferedLogger) FlushBuffer() (err error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	pending := l.entries
	l.entries = make([]Entry, 0, cap(pending))
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	written := 0
	defer func() {
		if err != nil {
			l.requeue(pending[written:])
		}
	}()

	out := l.out
	if out == nil {
		if l.path == "" {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FilePermissions)
		if openErr != nil {
			return fmt.Errorf("failed to open log file: %w", openErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close log file: %w", cerr)
			}
		}()
		out = f
	}

	sink := &errWriter{w: out}
	writer := logrus.New()
	writer.SetOutput(sink)
	writer.SetLevel(logrus.TraceLevel)
	writer.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})

	for _, e := range pending {
		writer.WithTime(e.Time).Log(e.Level, e.Message)
		if sink.err != nil {
			return fmt.Errorf("failed to write log entry: %w", sink.err)
		}
		written++
	}

	return nil
}

// Start flushes the buffer every interval until ctx is done
func (l *BufferedLogger) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.FlushBuffer(); err != nil {
					logrus.WithError(err).Warn("periodic log flush failed")
				}
			}
		}
	}()
}

func (l *BufferedLogger) requeue(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(entries, l.entries...)
}

// errWriter remembers the first write error and hides it from logrus,
// which would otherwise report it on stderr
type errWriter struct {
	w   io.Writer
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return len(p), nil
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = err
	}
	return len(p), nil
}

// New returns the process logger used by commands and servers
func New(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}
