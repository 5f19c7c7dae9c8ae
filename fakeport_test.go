package serial

import (
	"bytes"
	"sync"
)

// fakePort is an in-memory Port. Each fed chunk is reported by InputWaiting
// and returned by Read as one unit, so tests control chunk boundaries.
type fakePort struct {
	mu sync.Mutex

	chunks [][]byte
	// waitErr is returned by InputWaiting once all chunks are consumed.
	waitErr error

	written    bytes.Buffer
	writeCalls int
	// maxWrite caps the bytes accepted per Write call when positive.
	maxWrite int
	writeErr error

	closed          bool
	closeCalls      int
	callsAfterClose int
}

func newFakePort(chunks ...string) *fakePort {
	f := &fakePort{}
	f.feed(chunks...)
	return f
}

func (f *fakePort) feed(chunks ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.chunks = append(f.chunks, []byte(c))
	}
}

func (f *fakePort) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
}

func (f *fakePort) InputWaiting() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.callsAfterClose++
		return 0, ErrClosed
	}
	if len(f.chunks) > 0 {
		return len(f.chunks[0]), nil
	}
	return 0, f.waitErr
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.callsAfterClose++
		return 0, ErrClosed
	}
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	f.chunks[0] = f.chunks[0][n:]
	if len(f.chunks[0]) == 0 {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.closed {
		f.callsAfterClose++
		return 0, ErrClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if f.maxWrite > 0 && n > f.maxWrite {
		n = f.maxWrite
	}
	f.written.Write(p[:n])
	return n, nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCalls++
	return nil
}

func (f *fakePort) snapshot() (written string, writeCalls, closeCalls, callsAfterClose int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String(), f.writeCalls, f.closeCalls, f.callsAfterClose
}
