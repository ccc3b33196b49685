// Package haltest provides in-memory stand-ins for the hal interfaces so
// Click drivers can be exercised without hardware.
package haltest

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// ErrNAK is returned by a target that is not acknowledging.
var ErrNAK = errors.New("haltest: nak")

// ----------------------------- Clock -----------------------------------------

// Clock is a mock clock whose Sleep advances time immediately, so drivers
// that busy-wait run instantly under test while Now() still moves.
type Clock struct{ *clock.Mock }

func NewClock() Clock { return Clock{clock.NewMock()} }

func (c Clock) Sleep(d time.Duration) { c.Mock.Add(d) }

// ----------------------------- GPIO ------------------------------------------

// FakePin records every level written to it.
type FakePin struct {
	mu      sync.Mutex
	ID      hal.PinID
	level   bool
	output  bool
	pull    hal.Pull
	history []bool
}

func (p *FakePin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.output = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.output = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.history = append(p.history, level)
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Drive sets the level as an external source would, without recording it.
func (p *FakePin) Drive(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

// History returns every level written through Set.
func (p *FakePin) History() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.history...)
}

// IsOutput reports the configured direction.
func (p *FakePin) IsOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

// ----------------------------- Provider --------------------------------------

// Provider hands out fakes by name. Pins are created on first use; buses
// must be registered up front.
type Provider struct {
	mu    sync.Mutex
	pins  map[hal.PinID]*FakePin
	i2c   map[string]hal.I2C
	spi   map[string]hal.SPI
	uart  map[string]hal.UART
	SPICf map[string]hal.SPIConfig
	UARTC map[string]hal.UARTConfig
}

func NewProvider() *Provider {
	return &Provider{
		pins:  map[hal.PinID]*FakePin{},
		i2c:   map[string]hal.I2C{},
		spi:   map[string]hal.SPI{},
		uart:  map[string]hal.UART{},
		SPICf: map[string]hal.SPIConfig{},
		UARTC: map[string]hal.UARTConfig{},
	}
}

func (p *Provider) AddI2C(name string, b hal.I2C) *Provider {
	p.mu.Lock()
	p.i2c[name] = b
	p.mu.Unlock()
	return p
}

func (p *Provider) AddSPI(name string, b hal.SPI) *Provider {
	p.mu.Lock()
	p.spi[name] = b
	p.mu.Unlock()
	return p
}

func (p *Provider) AddUART(name string, u hal.UART) *Provider {
	p.mu.Lock()
	p.uart[name] = u
	p.mu.Unlock()
	return p
}

// FakePin returns (creating if needed) the pin with the given id.
func (p *Provider) FakePin(id hal.PinID) *FakePin {
	p.mu.Lock()
	defer p.mu.Unlock()
	fp, ok := p.pins[id]
	if !ok {
		fp = &FakePin{ID: id}
		p.pins[id] = fp
	}
	return fp
}

func (p *Provider) Pin(id hal.PinID) (hal.Pin, error) {
	if id == hal.NC {
		return nil, errcode.UnknownPin
	}
	return p.FakePin(id), nil
}

func (p *Provider) I2C(bus string) (hal.I2C, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.i2c[bus]
	if !ok {
		return nil, errcode.UnknownBus
	}
	return b, nil
}

func (p *Provider) SPI(bus string, cfg hal.SPIConfig) (hal.SPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.spi[bus]
	if !ok {
		return nil, errcode.UnknownBus
	}
	p.SPICf[bus] = cfg
	return b, nil
}

func (p *Provider) UART(port string, cfg hal.UARTConfig) (hal.UART, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.uart[port]
	if !ok {
		return nil, errcode.UnknownBus
	}
	p.UARTC[port] = cfg
	return u, nil
}

// Socket is a fully wired test socket using bus names "i2c", "spi", "uart".
var Socket = hal.Socket{
	AN: "AN", RST: "RST", CS: "CS", SCK: "SCK", MISO: "MISO", MOSI: "MOSI",
	PWM: "PWM", INT: "INT", RX: "RX", TX: "TX", SCL: "SCL", SDA: "SDA",
	I2CBus: "i2c", SPIBus: "spi", UARTBus: "uart",
}
