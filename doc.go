// Package serial provides an asynchronous, line-oriented serial port reader
// for embedded devices that print newline-terminated records.
//
// A SerialReader owns the port and one background goroutine. The goroutine
// asks the OS how many bytes are pending, reads exactly that many, and
// splits the stream into lines on '\n'. Blank lines are dropped. Each line is
// handed either to a callback or, when none is set, to a queue.
//
// Features:
//   - Native termios driver on Linux (TIOCINQ, VTIME, TCFLSH), go.bug.st/serial elsewhere
//   - Fixed 8N1 line with DTR asserted, OS buffers purged on open
//   - Push (SetCallback) or pull (HasLine/PopLine) delivery, switchable at runtime
//   - Write loops until every byte is accepted
//   - Close stops and joins the reader before the port is released
//
// I/O errors on the reader goroutine are not returned to anyone directly:
// the reader stops, Valid turns false, Done is closed and Err reports the
// cause. Config.OnStop can be used to be notified.
//
// Example usage:
//
//	r, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 19200,
//	})
//	if errors.Is(err, serial.ErrOpenFailed) {
//	    // not present or busy, try another port
//	}
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	r.SetCallback(func(line string) {
//	    fmt.Println("Received:", line)
//	})
//
//	if _, err := r.WriteString("help\n"); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	<-r.Done() // reader stopped: device gone or Close called
package serial
