//go:build linux && !baremetal

package platform

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// Options tunes the Linux host.
type Options struct {
	Logger *zap.Logger
	// UARTBuffer is the receive ring size per serial port. Default 1024.
	UARTBuffer int
	// UARTReadTimeout bounds each blocking read. Default 100 ms.
	UARTReadTimeout time.Duration
}

// Host is a hal.Provider over periph.io and tarm/serial. Buses and ports
// are opened on first use and shared between Click drivers asking for the
// same name.
type Host struct {
	log  *zap.Logger
	opts Options

	mu    sync.Mutex
	i2c   map[string]i2c.BusCloser
	spi   map[string]*hostSPIPort
	uarts map[string]*hostUART

	openSPI func(name string) (spi.PortCloser, error)
}

// hostSPIPort is an opened port and its single connection.
type hostSPIPort struct {
	port spi.PortCloser
	conn hostSPI
	cfg  hal.SPIConfig
}

type hostUART struct {
	port *serial.Port
	*StreamUART
}

// Open initialises the periph host drivers.
func Open(opts Options) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.UARTBuffer <= 0 {
		opts.UARTBuffer = 1024
	}
	if opts.UARTReadTimeout <= 0 {
		opts.UARTReadTimeout = 100 * time.Millisecond
	}
	st, err := host.Init()
	if err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	opts.Logger.Debug("periph drivers loaded", zap.Int("loaded", len(st.Loaded)), zap.Int("failed", len(st.Failed)))
	return &Host{
		log:   opts.Logger,
		opts:  opts,
		i2c:   map[string]i2c.BusCloser{},
		spi:   map[string]*hostSPIPort{},
		uarts: map[string]*hostUART{},

		openSPI: spireg.Open,
	}, nil
}

// Pin resolves a GPIO by periph name ("GPIO17").
func (h *Host) Pin(id hal.PinID) (hal.Pin, error) {
	p := gpioreg.ByName(string(id))
	if p == nil {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "platform", Msg: string(id)}
	}
	return hostPin{p}, nil
}

// I2C opens the bus by name ("/dev/i2c-1", "1" or "" for the first bus).
func (h *Host) I2C(name string) (hal.I2C, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.i2c[name]; ok {
		return b, nil
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name, Err: err}
	}
	h.i2c[name] = b
	h.log.Info("i2c bus opened", zap.String("bus", name), zap.Stringer("impl", b))
	return b, nil
}

// SPI opens the port by name and connects it with cfg. A port is connected
// once; later callers share that connection whatever cfg they pass.
func (h *Host) SPI(name string, cfg hal.SPIConfig) (hal.SPI, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sp, ok := h.spi[name]; ok {
		if sp.cfg != cfg {
			h.log.Warn("spi port already connected with other settings",
				zap.String("port", name), zap.Uint32("hz", sp.cfg.Frequency), zap.Uint8("mode", sp.cfg.Mode))
		}
		return sp.conn, nil
	}
	p, err := h.openSPI(name)
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name, Err: err}
	}
	c, err := p.Connect(physic.Frequency(cfg.Frequency)*physic.Hertz, spi.Mode(cfg.Mode), 8)
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "spi %s connect", name), p.Close())
	}
	h.spi[name] = &hostSPIPort{port: p, conn: hostSPI{c}, cfg: cfg}
	h.log.Info("spi port connected", zap.String("port", name), zap.Uint32("hz", cfg.Frequency), zap.Uint8("mode", cfg.Mode))
	return hostSPI{c}, nil
}

// UART opens a serial device ("/dev/ttyS0").
func (h *Host) UART(name string, cfg hal.UARTConfig) (hal.UART, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u, ok := h.uarts[name]; ok {
		return u, nil
	}
	cfg = cfg.WithDefaults()
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        int(cfg.Baud),
		ReadTimeout: h.opts.UARTReadTimeout,
		Size:        cfg.DataBits,
		Parity:      serial.Parity(cfg.Parity),
		StopBits:    serial.StopBits(cfg.StopBits),
	})
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "platform", Msg: name, Err: err}
	}
	recv := func(_ context.Context, p []byte) (int, error) { return port.Read(p) }
	u := &hostUART{port: port, StreamUART: NewStreamUART(port, recv, h.opts.UARTBuffer)}
	h.uarts[name] = u
	h.log.Info("serial port opened", zap.String("port", name), zap.Uint32("baud", cfg.Baud))
	return u, nil
}

// Close stops every serial reader and closes all buses and ports.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs error
	for name, u := range h.uarts {
		u.Stop()
		if n := u.Dropped(); n > 0 {
			h.log.Warn("serial overflow", zap.String("port", name), zap.Int("dropped", n))
		}
		errs = multierr.Append(errs, errors.Wrapf(u.port.Close(), "closing %s", name))
	}
	for name, b := range h.i2c {
		errs = multierr.Append(errs, errors.Wrapf(b.Close(), "closing %s", name))
	}
	for name, sp := range h.spi {
		errs = multierr.Append(errs, errors.Wrapf(sp.port.Close(), "closing %s", name))
	}
	h.uarts = map[string]*hostUART{}
	h.i2c = map[string]i2c.BusCloser{}
	h.spi = map[string]*hostSPIPort{}
	return errs
}

type hostPin struct{ p gpio.PinIO }

func (h hostPin) ConfigureInput(pull hal.Pull) error {
	pp := gpio.Float
	switch pull {
	case hal.PullUp:
		pp = gpio.PullUp
	case hal.PullDown:
		pp = gpio.PullDown
	}
	return h.p.In(pp, gpio.NoEdge)
}

func (h hostPin) ConfigureOutput(initial bool) error { return h.p.Out(gpio.Level(initial)) }
func (h hostPin) Set(level bool)                     { _ = h.p.Out(gpio.Level(level)) }
func (h hostPin) Get() bool                          { return bool(h.p.Read()) }

// hostSPI adds the single-byte Transfer the tinygo SPI interface wants.
type hostSPI struct{ c spi.Conn }

func (s hostSPI) Tx(w, r []byte) error {
	switch {
	case r == nil:
		r = make([]byte, len(w))
	case w == nil:
		w = make([]byte, len(r))
	}
	return s.c.Tx(w, r)
}

func (s hostSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.c.Tx([]byte{b}, r[:])
	return r[0], err
}
