// Package console reads operator input for the logger. On a terminal it uses
// ergochat/readline for line editing and history; when stdin is piped it
// falls back to plain line scanning.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

// ToggleWritesCommand toggles the write log instead of being sent to the
// device.
const ToggleWritesCommand = "+LOGWRITES"

const historySize = 500

// Console reads lines from the operator.
type Console struct {
	interactive bool
	rl          *readline.Instance
	scanner     *bufio.Scanner

	closeOnce sync.Once
}

// New returns a console reading from in. Readline is used only when in is a
// terminal and not running under Emacs.
func New(in *os.File, historyFile string) *Console {
	interactive := term.IsTerminal(int(in.Fd())) && os.Getenv("INSIDE_EMACS") == ""
	if !interactive {
		return NewReader(in)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Stdin:                  in,
		HistoryFile:            historyFile,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return NewReader(in)
	}
	return &Console{interactive: true, rl: rl}
}

// NewReader returns a non-interactive console scanning lines from r.
func NewReader(r io.Reader) *Console {
	return &Console{scanner: bufio.NewScanner(r)}
}

// IsInteractive reports whether readline is in use.
func (c *Console) IsInteractive() bool {
	return c.interactive
}

// ReadLine blocks for the next line, without its line ending. It returns
// io.EOF at end of input or when the operator presses Ctrl-D or Ctrl-C.
func (c *Console) ReadLine() (string, error) {
	if c.interactive {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				return "", io.EOF
			}
			return "", err
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			c.rl.SaveToHistory(trimmed)
		}
		return line, nil
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

// Lines reads lines on a new goroutine and delivers them on the returned
// channel, which is closed at end of input. A read error other than io.EOF
// is passed to onErr when it is not nil.
func (c *Console) Lines(onErr func(error)) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for {
			line, err := c.ReadLine()
			if err != nil {
				if !errors.Is(err, io.EOF) && onErr != nil {
					onErr(err)
				}
				return
			}
			ch <- line
		}
	}()
	return ch
}

// Close saves history and releases the terminal.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		if c.rl != nil {
			c.rl.Close()
		}
	})
}

// Router acts on operator input: the toggle command flips the write log and
// everything else is sent to the device with a trailing newline.
type Router struct {
	Out          io.Writer
	ToggleWrites func() bool
	Send         func(command string) error
}

// Handle routes one input line.
func (r *Router) Handle(line string) error {
	if line == ToggleWritesCommand {
		state := "DISABLED"
		if r.ToggleWrites() {
			state = "ENABLED"
		}
		fmt.Fprintf(r.Out, "[Local] Showing write logs is %s\n", state)
		return nil
	}
	return r.Send(line + "\n")
}
