package serial

import "sync"

// Dispatcher routes framed lines either to a callback or to a FIFO queue.
// The callback and the queue have separate locks which are never held at
// the same time.
type Dispatcher struct {
	callbackMu sync.Mutex
	callback   func(string)

	queueMu sync.Mutex
	queue   []string
}

// SetCallback replaces the callback; nil routes lines to the queue again.
// Lines already queued stay queued.
func (d *Dispatcher) SetCallback(fn func(line string)) {
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	d.callback = fn
}

// Dispatch delivers one line. The callback runs with the callback lock held,
// so it must not call SetCallback or block for long.
func (d *Dispatcher) Dispatch(line string) {
	if d.deliver(line) {
		return
	}
	d.queueMu.Lock()
	d.queue = append(d.queue, line)
	d.queueMu.Unlock()
}

func (d *Dispatcher) deliver(line string) bool {
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	if d.callback == nil {
		return false
	}
	d.callback(line)
	return true
}

// HasPending reports whether the queue holds a line.
func (d *Dispatcher) HasPending() bool {
	return d.Len() > 0
}

// Len returns the number of queued lines.
func (d *Dispatcher) Len() int {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return len(d.queue)
}

// Pop removes and returns the oldest queued line. It never blocks; on an
// empty queue it returns "", false.
func (d *Dispatcher) Pop() (string, bool) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if len(d.queue) == 0 {
		return "", false
	}
	line := d.queue[0]
	d.queue[0] = ""
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
	return line, true
}
