// Package journal appends one JSON line per remote price fetch to a
// rotating file, for auditing fallbacks and failures after the fact.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/better95159-hub/pricegate/internal/pricesource"
)

const (
	DefaultFile       = "fetches.jsonl"
	defaultBufferSize = 1024
	closeTimeout      = 5 * time.Second
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("journal: closed")

// ErrBufferFull is returned when the writer cannot keep up.
var ErrBufferFull = errors.New("journal: buffer full")

// Record is one fetch outcome.
type Record struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Currency   string    `json:"currency"`
	Strategy   string    `json:"strategy"`
	Outcome    string    `json:"outcome"`
	Via        string    `json:"via,omitempty"`
	Products   int       `json:"products"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Outcome values.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// FromOutcome converts a loader outcome to a record.
func FromOutcome(o pricesource.Outcome) Record {
	r := Record{
		ID:         o.ID,
		Time:       o.Time,
		Currency:   string(o.Currency),
		Strategy:   o.Strategy,
		Outcome:    OutcomeOK,
		Via:        o.Via,
		Products:   o.Products,
		DurationMS: o.Duration.Milliseconds(),
	}
	switch {
	case o.Err != nil:
		r.Outcome = OutcomeError
		r.Error = o.Err.Error()
	case o.Fallback():
		r.Outcome = OutcomeFallback
	}
	return r
}

// Writer queues records and writes them from a single goroutine.
type Writer struct {
	out    io.WriteCloser
	ch     chan Record
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// Open creates dir and a lumberjack-rotated journal file inside it.
func Open(dir string, maxSizeMB int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(dir, DefaultFile),
		MaxSize:    maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		Compress:   true,
	}
	slog.Info("journal opened", "file", lj.Filename)
	return NewWriter(lj, defaultBufferSize), nil
}

// NewWriter writes records to out.
func NewWriter(out io.WriteCloser, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	w := &Writer{
		out:  out,
		ch:   make(chan Record, bufferSize),
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Write queues r without blocking.
func (w *Writer) Write(r Record) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.ch <- r:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "id", r.ID, "currency", r.Currency)
		return ErrBufferFull
	}
}

// FetchCompleted implements pricesource.Observer.
func (w *Writer) FetchCompleted(_ context.Context, o pricesource.Outcome) {
	_ = w.Write(FromOutcome(o))
}

// Close drains queued records and closes the file.
func (w *Writer) Close() error {
	w.closed.Do(func() { close(w.done) })
	w.wg.Wait()
	return w.out.Close()
}

func (w *Writer) loop() {
	defer w.wg.Done()
	for {
		select {
		case r := <-w.ch:
			w.write(r)
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	deadline := time.After(closeTimeout)
	for {
		select {
		case r := <-w.ch:
			w.write(r)
		case <-deadline:
			slog.Warn("journal close timeout, records may be lost", "pending", len(w.ch))
			return
		default:
			return
		}
	}
}

func (w *Writer) write(r Record) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("journal marshal failed", "id", r.ID, "error", err)
		return
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "id", r.ID, "error", err)
	}
}
