// Package csvlog appends data records to per-source, per-path CSV files:
//
//	<dir>/<SOURCE>/<path>.csv
//
// Each file starts with the header "time;computer_time;value". Rows are only
// ever appended.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luhtfiimanal/go-serial-logger/internal/record"
)

// Header is written as the first line of every new file.
var Header = []string{"time", "computer_time", "value"}

// Writer appends records below Dir. It is safe for concurrent use.
type Writer struct {
	Dir string

	mu sync.Mutex
}

// New returns a Writer rooted at dir ("." when empty).
func New(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{Dir: dir}
}

// Path returns the file a record is appended to.
func (w *Writer) Path(rec record.Record) string {
	return filepath.Join(w.Dir, rec.Source, rec.FileName())
}

// Append writes one row for rec, stamped with receivedAt in milliseconds
// since the epoch. It returns the file path and the row as written.
func (w *Writer) Append(rec record.Record, receivedAt time.Time) (path, row string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path = w.Path(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, "", fmt.Errorf("create directory for %s: %w", path, err)
	}

	_, err = os.Stat(path)
	isNew := errors.Is(err, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return path, "", fmt.Errorf("could not open file %s to write data on: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	cw.Comma = ';'
	if isNew {
		cw.Write(Header)
	}
	fields := []string{
		strconv.FormatUint(rec.DeviceTime, 10),
		strconv.FormatInt(receivedAt.UnixMilli(), 10),
		rec.Value,
	}
	cw.Write(fields)
	cw.Flush()
	if err := cw.Error(); err != nil {
		return path, "", err
	}

	out := sb.String()
	if _, err := f.WriteString(out); err != nil {
		return path, "", fmt.Errorf("write %s: %w", path, err)
	}
	if isNew {
		out = out[strings.IndexByte(out, '\n')+1:]
	}
	return path, out, nil
}
