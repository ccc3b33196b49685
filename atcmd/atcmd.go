// Package atcmd drives modules that speak an ASCII AT command/response
// protocol over a UART.
//
// Received bytes accumulate in a bounded ring (oldest bytes slide out when
// it fills). After a command is sent, Wait polls that buffer until a final
// result line appears or the time budget runs out:
//
//	e := atcmd.New(uart, atcmd.DefaultConfig())
//	err := e.Command("AT+CMGF=1") // nil, errcode.Error, errcode.CmdError or errcode.Timeout
//
// There is no background reader; every wait pulls from the UART itself.
package atcmd

import (
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/ring"
	"clickboards-go/x/strx"
)

// Config controls buffer size, tokens and timing. Zero fields take defaults.
type Config struct {
	// BufferSize is rounded up to a power of two. Default 256.
	BufferSize int
	// PollInterval is the sleep between buffer checks. Default 10 ms.
	PollInterval time.Duration
	// Timeout is the budget used by Command and Query. Default 2 s.
	Timeout time.Duration
	// Terminator is appended to every command. Default "\r".
	Terminator string
	// OK and Error are the final result lines. Defaults "OK" and "ERROR".
	OK    string
	Error string
	// CmdErrorPrefixes mark extended error lines ("+CME ERROR: 10").
	CmdErrorPrefixes []string

	Clock clock.Clock
}

// DefaultConfig returns the 3GPP-style defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:       256,
		PollInterval:     10 * time.Millisecond,
		Timeout:          2 * time.Second,
		Terminator:       "\r",
		OK:               "OK",
		Error:            "ERROR",
		CmdErrorPrefixes: []string{"+CME ERROR", "+CMS ERROR"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Terminator == "" {
		c.Terminator = d.Terminator
	}
	if c.OK == "" {
		c.OK = d.OK
	}
	if c.Error == "" {
		c.Error = d.Error
	}
	if c.CmdErrorPrefixes == nil {
		c.CmdErrorPrefixes = d.CmdErrorPrefixes
	}
	c.Clock = hal.Clock(c.Clock)
	return c
}

// Engine owns the receive buffer for one UART.
type Engine struct {
	uart hal.UART
	cfg  Config
	clk  clock.Clock
	rx   *ring.Ring
	last string

	chunk [64]byte
}

// New binds an engine to u.
func New(u hal.UART, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		uart: u,
		cfg:  cfg,
		clk:  cfg.Clock,
		rx:   ring.NewAtLeast(cfg.BufferSize),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Process moves every pending UART byte into the buffer and returns how many
// were read.
func (e *Engine) Process() int {
	total := 0
	for {
		n, err := e.uart.Read(e.chunk[:])
		if n > 0 {
			e.rx.Write(e.chunk[:n])
			total += n
		}
		if err != nil || n == 0 {
			return total
		}
	}
}

// Clear drops buffered bytes and anything still pending on the UART.
func (e *Engine) Clear() {
	e.Process()
	e.rx.Reset()
}

// Send clears the buffer and writes cmd followed by the terminator.
func (e *Engine) Send(cmd string) error {
	e.Clear()
	e.last = cmd
	return e.Write([]byte(cmd + e.cfg.Terminator))
}

// Write sends raw bytes without touching the buffer.
func (e *Engine) Write(p []byte) error {
	for len(p) > 0 {
		n, err := e.uart.Write(p)
		if err != nil {
			return errcode.Wrap(errcode.Error, "atcmd write", err)
		}
		p = p[n:]
	}
	return nil
}

// Response returns everything buffered since the last Send.
func (e *Engine) Response() string { return e.rx.String() }

// Lines returns the complete, non-empty response lines buffered so far.
func (e *Engine) Lines() []string {
	parts := strings.Split(e.Response(), "\n")
	// The last part is either empty or a line still being received.
	parts = parts[:len(parts)-1]
	var out []string
	for _, l := range parts {
		if l = strings.TrimRight(l, "\r"); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// result scans complete lines for a final result. done is false while none
// has arrived.
func (e *Engine) result() (done bool, err error) {
	for _, l := range e.Lines() {
		for _, p := range e.cfg.CmdErrorPrefixes {
			if strings.HasPrefix(l, p) {
				return true, &errcode.E{C: errcode.CmdError, Op: e.last, Msg: l}
			}
		}
		switch l {
		case e.cfg.OK:
			return true, nil
		case e.cfg.Error:
			return true, &errcode.E{C: errcode.Error, Op: e.last}
		}
	}
	return false, nil
}

// Wait polls until a final result line arrives or timeout elapses. It
// returns nil for OK, errcode.Error for ERROR, errcode.CmdError for an
// extended error and errcode.Timeout when the budget runs out.
func (e *Engine) Wait(timeout time.Duration) error {
	deadline := e.clk.Now().Add(timeout)
	for {
		e.Process()
		if done, err := e.result(); done {
			return err
		}
		if !e.clk.Now().Before(deadline) {
			return &errcode.E{C: errcode.Timeout, Op: e.last}
		}
		e.clk.Sleep(e.cfg.PollInterval)
	}
}

// WaitFor polls until token appears anywhere in the buffer (prompts such as
// "> " carry no line ending). An ERROR result ends the wait early.
func (e *Engine) WaitFor(token string, timeout time.Duration) error {
	deadline := e.clk.Now().Add(timeout)
	for {
		e.Process()
		if e.rx.Contains(token) {
			return nil
		}
		if done, err := e.result(); done && err != nil {
			return err
		}
		if !e.clk.Now().Before(deadline) {
			return &errcode.E{C: errcode.Timeout, Op: e.last, Msg: "waiting for " + token}
		}
		e.clk.Sleep(e.cfg.PollInterval)
	}
}

// Command sends cmd and waits for its result. A timed-out command is sent
// once more before giving up.
func (e *Engine) Command(cmd string) error {
	return e.CommandTimeout(cmd, e.cfg.Timeout)
}

// CommandTimeout is Command with an explicit budget per attempt.
func (e *Engine) CommandTimeout(cmd string, timeout time.Duration) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = e.Send(cmd); err != nil {
			return err
		}
		err = e.Wait(timeout)
		if errcode.Of(err) != errcode.Timeout {
			return err
		}
	}
	return err
}

// Query runs cmd and returns the text after prefix on the first matching
// response line, trimmed of surrounding spaces.
func (e *Engine) Query(cmd, prefix string) (string, error) {
	if err := e.Command(cmd); err != nil {
		return "", err
	}
	for _, l := range e.Lines() {
		if rest, ok := strx.CutPrefixFold(l, prefix); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	return "", &errcode.E{C: errcode.Error, Op: cmd, Msg: "no " + prefix + " line"}
}
