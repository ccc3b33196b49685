//go:build rp2040 || rp2350

package platform

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// Host is a hal.Provider over the RP2 machine package. Pins are named
// "GP<n>"; buses "i2c0", "i2c1", "spi0", "spi1", "uart0", "uart1". Bus pins
// come from the carrier's sockets, falling back to the machine defaults
// for a bus no socket routes.
type Host struct {
	pins  map[string]BusPins
	mu    sync.Mutex
	i2c   map[string]*machine.I2C
	spi   map[string]*machine.SPI
	uarts map[string]*StreamUART
}

// Open returns an RP2 provider wired for carrier. Buses are configured on
// first use.
func Open(carrier hal.Board) (*Host, error) {
	pins, err := BusPinTable(carrier)
	if err != nil {
		return nil, err
	}
	return &Host{
		pins:  pins,
		i2c:   map[string]*machine.I2C{},
		spi:   map[string]*machine.SPI{},
		uarts: map[string]*StreamUART{},
	}, nil
}

// Pin resolves "GP<n>" (0..28).
func (h *Host) Pin(id hal.PinID) (hal.Pin, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(string(id), "GP"))
	if err != nil || n < 0 || n > 28 {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "platform", Msg: string(id)}
	}
	return rp2Pin{machine.Pin(n)}, nil
}

// gp resolves a table pin, or def when the carrier leaves it unrouted.
func gp(id hal.PinID, def machine.Pin) machine.Pin {
	n, err := strconv.Atoi(strings.TrimPrefix(string(id), "GP"))
	if id == hal.NC || err != nil {
		return def
	}
	return machine.Pin(n)
}

// I2C configures i2c0 or i2c1 at 400 kHz.
func (h *Host) I2C(name string) (hal.I2C, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.i2c[name]; ok {
		return b, nil
	}
	var b *machine.I2C
	cfg := machine.I2CConfig{Frequency: 400 * machine.KHz}
	switch name {
	case "i2c0":
		b, cfg.SDA, cfg.SCL = machine.I2C0, machine.I2C0_SDA_PIN, machine.I2C0_SCL_PIN
	case "i2c1":
		b, cfg.SDA, cfg.SCL = machine.I2C1, machine.I2C1_SDA_PIN, machine.I2C1_SCL_PIN
	default:
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name}
	}
	bp := h.pins[name]
	cfg.SDA, cfg.SCL = gp(bp.SDA, cfg.SDA), gp(bp.SCL, cfg.SCL)
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	h.i2c[name] = b
	return b, nil
}

// SPI configures spi0 or spi1. The first caller's frequency and mode win.
func (h *Host) SPI(name string, cfg hal.SPIConfig) (hal.SPI, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.spi[name]; ok {
		return b, nil
	}
	var (
		b             *machine.SPI
		sck, sdo, sdi machine.Pin
	)
	switch name {
	case "spi0":
		b, sck, sdo, sdi = machine.SPI0, machine.SPI0_SCK_PIN, machine.SPI0_SDO_PIN, machine.SPI0_SDI_PIN
	case "spi1":
		b, sck, sdo, sdi = machine.SPI1, machine.SPI1_SCK_PIN, machine.SPI1_SDO_PIN, machine.SPI1_SDI_PIN
	default:
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name}
	}
	bp := h.pins[name]
	if err := b.Configure(machine.SPIConfig{
		Frequency: cfg.Frequency,
		Mode:      cfg.Mode,
		SCK:       gp(bp.SCK, sck),
		SDO:       gp(bp.MOSI, sdo),
		SDI:       gp(bp.MISO, sdi),
	}); err != nil {
		return nil, err
	}
	h.spi[name] = b
	return b, nil
}

// UART configures uart0 or uart1 on the carrier's TX/RX pins.
func (h *Host) UART(name string, cfg hal.UARTConfig) (hal.UART, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u, ok := h.uarts[name]; ok {
		return u, nil
	}
	cfg = cfg.WithDefaults()
	var (
		hw     *uartx.UART
		tx, rx machine.Pin
	)
	switch name {
	case "uart0":
		hw, tx, rx = uartx.UART0, machine.UART0_TX_PIN, machine.UART0_RX_PIN
	case "uart1":
		hw, tx, rx = uartx.UART1, machine.UART1_TX_PIN, machine.UART1_RX_PIN
	default:
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name}
	}
	bp := h.pins[name]
	tx, rx = gp(bp.TX, tx), gp(bp.RX, rx)
	if err := hw.Configure(uartx.UARTConfig{BaudRate: cfg.Baud, TX: tx, RX: rx}); err != nil {
		return nil, err
	}
	par := uartx.ParityNone
	switch cfg.Parity {
	case 'E':
		par = uartx.ParityEven
	case 'O':
		par = uartx.ParityOdd
	}
	if err := hw.SetFormat(cfg.DataBits, cfg.StopBits, par); err != nil {
		return nil, err
	}
	u := NewStreamUART(hw, func(ctx context.Context, p []byte) (int, error) {
		return hw.RecvSomeContext(ctx, p)
	}, 512)
	h.uarts[name] = u
	return u, nil
}

type rp2Pin struct{ p machine.Pin }

func (r rp2Pin) ConfigureInput(pull hal.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r rp2Pin) Set(level bool) { r.p.Set(level) }
func (r rp2Pin) Get() bool      { return r.p.Get() }
