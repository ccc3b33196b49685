// Package eeprom drives EEPROM clicks built on 24Cxx serial EEPROMs.
//
// Small parts (up to 2 KiB) use a single address byte and carry the upper
// address bits as block-select bits in the I²C device address; larger parts
// use a two-byte big-endian address. Writes are split at page boundaries and
// each page is followed by acknowledge polling until the internal write cycle
// completes.
package eeprom

import (
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/mathx"
)

// Base I²C address (A2..A0 low).
const Address uint16 = 0x50

var (
	ErrOutOfRange   = &errcode.E{C: errcode.InvalidParams, Op: "eeprom", Msg: "address out of range"}
	ErrProtected    = &errcode.E{C: errcode.NotReady, Op: "eeprom", Msg: "write protected"}
	ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "eeprom"}
)

// Part describes an EEPROM geometry.
type Part struct {
	Size         int
	PageSize     int
	AddressBytes int
}

var (
	Part24C02  = Part{Size: 256, PageSize: 8, AddressBytes: 1}
	Part24C04  = Part{Size: 512, PageSize: 16, AddressBytes: 1}
	Part24C08  = Part{Size: 1024, PageSize: 16, AddressBytes: 1}
	Part24C16  = Part{Size: 2048, PageSize: 16, AddressBytes: 1}
	Part24C32  = Part{Size: 4096, PageSize: 32, AddressBytes: 2}
	Part24C64  = Part{Size: 8192, PageSize: 32, AddressBytes: 2}
	Part24C256 = Part{Size: 32768, PageSize: 64, AddressBytes: 2}
)

// Config holds pin and bus assignments and the part geometry.
type Config struct {
	I2CBus  string
	Address uint16
	WP      hal.PinID // write protect, active high
	Part    `mapstructure:",squash"`
	// WriteCycle bounds acknowledge polling after each page write.
	WriteCycle time.Duration
	Clock      clock.Clock
}

// DefaultConfig targets the 24C08 fitted to the EEPROM click.
func DefaultConfig() Config {
	return Config{Address: Address, Part: Part24C08, WriteCycle: 5 * time.Millisecond}
}

// MapMikroBUS assigns the socket's I²C bus; WP sits on the PWM pin.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.I2CBus = s.I2CBus
	c.WP = s.PWM
}

// Device is an EEPROM click instance.
type Device struct {
	bus       hal.I2C
	addr      uint16
	wp        hal.Pin
	part      Part
	cycle     time.Duration
	clk       clock.Clock
	protected bool

	buf []byte // address bytes + one page
}

// New binds the bus and WP pin. WP starts asserted.
func New(p hal.Provider, cfg Config) (*Device, error) {
	if cfg.Part == (Part{}) {
		cfg.Part = Part24C08
	}
	if cfg.Size <= 0 || cfg.PageSize <= 0 || cfg.Size%cfg.PageSize != 0 ||
		cfg.AddressBytes < 1 || cfg.AddressBytes > 2 ||
		(cfg.AddressBytes == 1 && cfg.Size > 2048) {
		return nil, ErrInvalidParam
	}
	bus, err := p.I2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	wp, err := hal.OutputPin(p, cfg.WP, true)
	if err != nil {
		return nil, err
	}
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.WriteCycle <= 0 {
		cfg.WriteCycle = 5 * time.Millisecond
	}
	return &Device{
		bus:       bus,
		addr:      cfg.Address,
		wp:        wp,
		part:      cfg.Part,
		cycle:     cfg.WriteCycle,
		clk:       hal.Clock(cfg.Clock),
		protected: cfg.WP != hal.NC,
		buf:       make([]byte, cfg.AddressBytes+cfg.PageSize),
	}, nil
}

// DefaultCfg releases write protection.
func (d *Device) DefaultCfg() error {
	d.WriteProtect(false)
	return nil
}

// Size returns the capacity in bytes.
func (d *Device) Size() int { return d.part.Size }

// PageSize returns the write page size.
func (d *Device) PageSize() int { return d.part.PageSize }

// AddressBytes returns the width of the memory address.
func (d *Device) AddressBytes() int { return d.part.AddressBytes }

// WriteProtect drives the WP pin.
func (d *Device) WriteProtect(on bool) {
	d.wp.Set(on)
	d.protected = on
}

// target returns the I²C address and the encoded memory address for a.
func (d *Device) target(a int) (uint16, int) {
	if d.part.AddressBytes == 1 {
		d.buf[0] = byte(a)
		return d.addr | uint16(a>>8)&0x07, 1
	}
	d.buf[0], d.buf[1] = byte(a>>8), byte(a)
	return d.addr, 2
}

func (d *Device) check(a, n int) error {
	if a < 0 || n < 0 || a+n > d.part.Size {
		return ErrOutOfRange
	}
	return nil
}

// Read fills buf starting at addr. Reads on block-select parts are split at
// 256-byte block boundaries.
func (d *Device) Read(addr int, buf []byte) error {
	if err := d.check(addr, len(buf)); err != nil {
		return err
	}
	for len(buf) > 0 {
		n := len(buf)
		if d.part.AddressBytes == 1 {
			n = mathx.Min(n, 256-addr&0xFF)
		}
		dev, ab := d.target(addr)
		if err := d.bus.Tx(dev, d.buf[:ab], buf[:n]); err != nil {
			return err
		}
		addr += n
		buf = buf[n:]
	}
	return nil
}

// Write stores data at addr, one page at a time.
func (d *Device) Write(addr int, data []byte) error {
	if err := d.check(addr, len(data)); err != nil {
		return err
	}
	if d.protected {
		return ErrProtected
	}
	for len(data) > 0 {
		n := mathx.Min(len(data), d.part.PageSize-addr%d.part.PageSize)
		if err := d.writePage(addr, data[:n]); err != nil {
			return err
		}
		addr += n
		data = data[n:]
	}
	return nil
}

// Erase fills the whole array with 0xFF.
func (d *Device) Erase() error {
	if d.protected {
		return ErrProtected
	}
	page := make([]byte, d.part.PageSize)
	for i := range page {
		page[i] = 0xFF
	}
	for a := 0; a < d.part.Size; a += d.part.PageSize {
		if err := d.writePage(a, page); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) writePage(addr int, data []byte) error {
	dev, ab := d.target(addr)
	n := copy(d.buf[ab:], data)
	if err := d.bus.Tx(dev, d.buf[:ab+n], nil); err != nil {
		return err
	}
	return d.waitReady(dev)
}

// waitReady polls for an acknowledge until the write cycle completes.
func (d *Device) waitReady(dev uint16) error {
	deadline := d.clk.Now().Add(d.cycle)
	for {
		if err := d.bus.Tx(dev, nil, nil); err == nil {
			return nil
		}
		if !d.clk.Now().Before(deadline) {
			return &errcode.E{C: errcode.Timeout, Op: "eeprom", Msg: "write cycle"}
		}
		d.clk.Sleep(500 * time.Microsecond)
	}
}
