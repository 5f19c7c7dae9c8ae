// Package record parses the data records a logging device prints, e.g.
//
//	&&&|1|0000000000321379|I2C|/dht/temperature,19.600000
//
// which carries a sequence field, the device clock, a three letter source
// name, a data path and a value.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrefix marks a line as a data record.
const DefaultPrefix = "&&&"

var (
	// ErrNotRecord is returned for lines that do not start with the prefix.
	ErrNotRecord = errors.New("not a data record")
	// ErrMalformed is returned for prefixed lines that cannot be parsed.
	ErrMalformed = errors.New("could not parse device input")
)

// Record is one parsed data record.
type Record struct {
	Seq        string
	DeviceTime uint64
	Source     string
	Path       string
	Value      string
}

// Parse parses line as a record introduced by prefix (DefaultPrefix when
// empty). A trailing carriage return is ignored.
func Parse(line, prefix string) (Record, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, prefix) {
		return Record{}, ErrNotRecord
	}

	fields := strings.SplitN(strings.TrimPrefix(line, prefix), "|", 5)
	if len(fields) != 5 || fields[0] != "" {
		return Record{}, fmt.Errorf("%w: %q: want %s|seq|time|source|path,value", ErrMalformed, line, prefix)
	}

	deviceTime, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q: device time: %w", ErrMalformed, line, err)
	}

	source := fields[3]
	if source == "" || strings.ContainsAny(source, `/\.`) {
		return Record{}, fmt.Errorf("%w: %q: bad source name %q", ErrMalformed, line, source)
	}

	path, value, ok := strings.Cut(fields[4], ",")
	if !ok || path == "" {
		return Record{}, fmt.Errorf("%w: %q: missing path,value", ErrMalformed, line)
	}

	return Record{
		Seq:        fields[1],
		DeviceTime: deviceTime,
		Source:     source,
		Path:       path,
		Value:      value,
	}, nil
}

// FileName is the CSV file name for the record's data path: path
// separators become underscores and ".csv" is appended.
func (r Record) FileName() string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(r.Path) + ".csv"
}
