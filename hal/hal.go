// Package hal is the hardware boundary every Click driver is written
// against: GPIO pins, bus masters and a clock for delays. Drivers never reach
// for a platform package directly; they receive a Provider and resolve the
// pins and buses their Config names.
package hal

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"tinygo.org/x/drivers"
)

// ---- GPIO ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is a single digital line.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// PinID names a pin in the platform's own scheme ("GPIO17", "GP5", ...).
// The empty PinID means not connected.
type PinID string

// NC is the not-connected pin.
const NC PinID = ""

// NopPin stands in for a pin that is not wired. Writes are dropped and reads
// return the level it was created with.
type NopPin struct{ Level bool }

func (NopPin) ConfigureInput(Pull) error   { return nil }
func (NopPin) ConfigureOutput(bool) error  { return nil }
func (NopPin) Set(bool)                    {}
func (p NopPin) Get() bool                 { return p.Level }

// ---- Buses ----

// I2C is the TinyGo driver Tx shape: write w then repeated-start read r.
type I2C = drivers.I2C

// SPI is the TinyGo driver SPI shape (full-duplex Tx plus single-byte
// Transfer). Chip select is driven by the Click driver through a Pin.
type SPI = drivers.SPI

// UART is a byte stream. Read must not block: it returns 0, nil when nothing
// is pending. Buffered reports how many bytes a Read would return.
type UART interface {
	io.Reader
	io.Writer
	Buffered() int
}

// SPIConfig carries the per-device bus parameters.
type SPIConfig struct {
	Frequency uint32 // Hz
	Mode      uint8  // 0..3
}

// UARTConfig carries the per-device serial parameters.
type UARTConfig struct {
	Baud     uint32
	DataBits uint8 // default 8
	StopBits uint8 // default 1
	Parity   byte  // 'N', 'E', 'O'; default 'N'
}

// WithDefaults fills zero fields.
func (c UARTConfig) WithDefaults() UARTConfig {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Parity == 0 {
		c.Parity = 'N'
	}
	return c
}

// Provider resolves named hardware. Implementations live in package platform
// (real hardware) and hal/haltest (fakes).
type Provider interface {
	Pin(id PinID) (Pin, error)
	I2C(bus string) (I2C, error)
	SPI(bus string, cfg SPIConfig) (SPI, error)
	UART(port string, cfg UARTConfig) (UART, error)
}

// OutputPin resolves id and configures it as an output at the given level.
// NC resolves to a NopPin.
func OutputPin(p Provider, id PinID, initial bool) (Pin, error) {
	if id == NC {
		return NopPin{Level: initial}, nil
	}
	pin, err := p.Pin(id)
	if err != nil {
		return nil, err
	}
	if err := pin.ConfigureOutput(initial); err != nil {
		return nil, err
	}
	return pin, nil
}

// InputPin resolves id and configures it as an input. NC resolves to a
// NopPin reading idle.
func InputPin(p Provider, id PinID, pull Pull, idle bool) (Pin, error) {
	if id == NC {
		return NopPin{Level: idle}, nil
	}
	pin, err := p.Pin(id)
	if err != nil {
		return nil, err
	}
	if err := pin.ConfigureInput(pull); err != nil {
		return nil, err
	}
	return pin, nil
}

// ---- Timing ----

// Clock returns c, or the wall clock when c is nil.
func Clock(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.New()
	}
	return c
}

// Pulse drives pin to level for d, then back.
func Pulse(c clock.Clock, pin Pin, level bool, d time.Duration) {
	pin.Set(level)
	c.Sleep(d)
	pin.Set(!level)
}
