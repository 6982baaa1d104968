// Package runlog is the append-only audit trail of a provisioning run: one
// line per event in the form "timestamp - PORT EVENT detail".
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is the second column of a run log line.
type Event string

const (
	EventStart         Event = "START"
	EventSkipped       Event = "SKIPPED"
	EventError         Event = "ERROR"
	EventErrorPageText Event = "ERROR_PAGE_TEXT"
	EventSuccess       Event = "SUCCESS"
	EventReset         Event = "RESET"
	EventFatal         Event = "FATAL"
	EventSummary       Event = "SUMMARY"
)

// RunPort stands in for the port column on run-wide events.
const RunPort = "RUN"

// TimeLayout is UTC ISO-8601 with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Log writes run events. It has a single writer; callers must not share one
// Log between concurrent runs.
type Log struct {
	logger *zap.Logger
	out    zapcore.WriteSyncer
	clock  zapcore.Clock
	closer io.Closer
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces the wall clock used for timestamps.
func WithClock(c zapcore.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// Path returns the run log file for a workflow under output.
func Path(output, workflow string) string {
	return filepath.Join(output, strings.ToLower(workflow)+"_run.log")
}

// Open appends to the run log at path, creating it if needed.
func Open(path string, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	l := New(f, opts...)
	l.closer = f
	return l, nil
}

// New writes the run log to w.
func New(w io.Writer, opts ...Option) *Log {
	l := &Log{
		out:   zapcore.Lock(zapcore.AddSync(w)),
		clock: zapcore.DefaultClock,
	}
	for _, o := range opts {
		o(l)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       encodeTime,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), l.out, zapcore.DebugLevel)
	l.logger = zap.New(core, zap.WithClock(l.clock))
	return l
}

func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(TimeLayout))
}

// Header starts a run section: "==== Activation run started: <ts> ====".
func (l *Log) Header(workflow string) {
	ts := l.clock.Now().UTC().Format(TimeLayout)
	fmt.Fprintf(l.out, "\n==== %s run started: %s ====\n", workflow, ts)
}

// Event appends one line. An empty port is written as RunPort.
func (l *Log) Event(port string, ev Event, detail string) {
	if port == "" {
		port = RunPort
	}
	msg := port + " " + string(ev)
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += " " + detail
	}
	l.logger.Info(msg)
}

// Eventf is Event with a formatted detail.
func (l *Log) Eventf(port string, ev Event, format string, args ...interface{}) {
	l.Event(port, ev, fmt.Sprintf(format, args...))
}

// PageText records page text lines as a single " | "-joined entry.
func (l *Log) PageText(port string, lines []string) {
	if len(lines) == 0 {
		return
	}
	l.Event(port, EventErrorPageText, strings.Join(lines, " | "))
}

// Close flushes and closes the underlying file, if Open created it.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
