package serial

import "bytes"

// LineFramer accumulates raw bytes and splits them into newline-terminated
// lines. It is not safe for concurrent use; the reader goroutine owns it.
type LineFramer struct {
	buf []byte
}

// Append adds a chunk to the buffer. Empty chunks are no-ops.
func (f *LineFramer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	f.buf = append(f.buf, p...)
}

// ExtractLine returns the first complete line without its delimiter and
// removes it from the buffer, along with any newlines that follow it. Blank
// lines are never returned. If no delimiter is buffered it returns false and
// leaves the partial line in place.
func (f *LineFramer) ExtractLine() (string, bool) {
	f.skipNewlines()
	idx := bytes.IndexByte(f.buf, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(f.buf[:idx])
	f.consume(idx + 1)
	f.skipNewlines()
	return line, true
}

// Buffered returns the number of bytes held as an incomplete line.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}

// Reset drops any buffered bytes.
func (f *LineFramer) Reset() {
	f.buf = f.buf[:0]
}

func (f *LineFramer) skipNewlines() {
	i := 0
	for i < len(f.buf) && f.buf[i] == '\n' {
		i++
	}
	f.consume(i)
}

// consume drops n bytes from the front, keeping the backing array.
func (f *LineFramer) consume(n int) {
	if n == 0 {
		return
	}
	f.buf = f.buf[:copy(f.buf, f.buf[n:])]
}
