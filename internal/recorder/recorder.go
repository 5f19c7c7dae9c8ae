// Package recorder is the steady-state line handler of the logger. Data
// records are appended to CSV files and, when configured, mirrored into
// SQLite; every other line is echoed to the operator.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	serial "github.com/luhtfiimanal/go-serial-logger"
	"github.com/luhtfiimanal/go-serial-logger/internal/csvlog"
	"github.com/luhtfiimanal/go-serial-logger/internal/linemux"
	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
	"github.com/luhtfiimanal/go-serial-logger/internal/record"
	"github.com/luhtfiimanal/go-serial-logger/internal/store"
)

// Options configure a Recorder. CSV and Out are required.
type Options struct {
	Out        io.Writer
	Prefix     string
	CSV        *csvlog.Writer
	Store      *store.Store // optional
	Hub        *linemux.Hub // optional
	ShowWrites bool
	Now        func() time.Time
}

// Recorder handles the lines of the connected device. It can be attached to
// successive readers as the device comes and goes.
type Recorder struct {
	opts Options

	outMu sync.Mutex

	// attachMu orders queued lines before live ones during Attach.
	attachMu sync.Mutex

	showWrites atomic.Bool

	sessionMu sync.Mutex
	session   uuid.UUID
}

// New returns a Recorder. Prefix defaults to record.DefaultPrefix and Now to
// time.Now.
func New(opts Options) *Recorder {
	if opts.Prefix == "" {
		opts.Prefix = record.DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Recorder{opts: opts}
	r.showWrites.Store(opts.ShowWrites)
	return r
}

// Attach makes the recorder the line handler of reader. Lines the reader
// queued before Attach are handled first, then live lines follow in arrival
// order. When a store is configured a new session is started for the
// reader's device.
func (r *Recorder) Attach(reader *serial.SerialReader) {
	if r.opts.Store != nil {
		id, err := r.opts.Store.StartSession(reader.Device(), r.opts.Now())
		if err != nil {
			monitoring.Logf("recorder: %v", err)
		}
		r.sessionMu.Lock()
		r.session = id
		r.sessionMu.Unlock()
	}

	// Waits out any callback in flight, so handleLive is not running while
	// the next SetCallback takes the dispatcher lock under attachMu.
	reader.SetCallback(nil)

	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	reader.SetCallback(r.handleLive)
	for {
		line, ok := reader.PopLine()
		if !ok {
			return
		}
		r.HandleLine(line)
	}
}

// handleLive is the reader callback. It blocks until Attach has handled
// every line queued before it.
func (r *Recorder) handleLive(line string) {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	r.HandleLine(line)
}

// HandleLine processes one line from the device. Failures are reported on
// the output and never stop the recorder.
func (r *Recorder) HandleLine(line string) {
	if r.opts.Hub != nil {
		r.opts.Hub.Publish(line)
	}

	rec, err := record.Parse(line, r.opts.Prefix)
	switch {
	case errors.Is(err, record.ErrNotRecord):
		r.Println(line)
		return
	case err != nil:
		r.Printf("Got exception: %v\n", err)
		return
	}

	receivedAt := r.opts.Now()
	path, row, err := r.opts.CSV.Append(rec, receivedAt)
	if err != nil {
		r.Printf("Got exception: %v\n", err)
		return
	}
	if r.showWrites.Load() {
		r.Printf("W+ %s: %s", path, row)
	}

	r.sessionMu.Lock()
	session := r.session
	r.sessionMu.Unlock()
	if r.opts.Store != nil && session != uuid.Nil {
		if err := r.opts.Store.RecordReading(session, rec, receivedAt); err != nil {
			monitoring.Logf("recorder: %v", err)
		}
	}
}

// ToggleWriteLog flips whether written rows are echoed and returns the new
// state.
func (r *Recorder) ToggleWriteLog() bool {
	for {
		old := r.showWrites.Load()
		if r.showWrites.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// ShowWrites reports whether written rows are echoed.
func (r *Recorder) ShowWrites() bool {
	return r.showWrites.Load()
}

// Printf writes to the output. Output from the reader and the operator side
// never interleaves within a line.
func (r *Recorder) Printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.opts.Out, format, args...)
}

// Println writes line and a newline to the output.
func (r *Recorder) Println(line string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.opts.Out, line)
}

// Write makes the recorder usable as the console output.
func (r *Recorder) Write(p []byte) (int, error) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	return r.opts.Out.Write(p)
}
