// Package ambient drives the Ambient click, a 16-bit ambient light sensor
// with selectable ADC gain (1×, 32×, 256×) and integration time.
//
// Illuminance is computed as
//
//	lux = data / gainDivisor * coefficient * (160 ms / integration)
//
// where coefficient is the lux-per-count figure at 1× and 160 ms.
package ambient

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// I2C address.
const Address uint16 = 0x38

// Registers.
const (
	regSystemControl = 0x40
	regModeControl1  = 0x41
	regModeControl2  = 0x42
	regModeControl3  = 0x44
	regALSDataLSB    = 0x50
	regIRDataLSB     = 0x52
	regManufacturer  = 0x92
)

// Bits.
const (
	sysSWReset  = 0x80
	sysIntReset = 0x40
	sysPartMask = 0x3F
	partID      = 0x0D

	mode2Valid    = 0x80
	mode2MeasEn   = 0x10
	mode2GainMask = 0x03
	mode1TimeMask = 0x07
	mode3Default  = 0x02

	manufacturerID = 0xE0
)

// Coefficient is lux per count at 1× gain and 160 ms integration.
const Coefficient = 0.25

// Gain is the ADC gain code.
type Gain uint8

const (
	Gain1X Gain = iota
	Gain32X
	Gain256X
)

var gainDivisor = [...]float32{Gain1X: 1, Gain32X: 32, Gain256X: 256}

// Divisor returns the numeric gain.
func (g Gain) Divisor() float32 {
	if int(g) >= len(gainDivisor) {
		return 1
	}
	return gainDivisor[g]
}

// Integration is the measurement time code.
type Integration uint8

const (
	Time160ms Integration = iota
	Time320ms
	Time640ms
	Time1280ms
	Time2560ms
	Time5120ms
)

// Duration returns the integration period.
func (it Integration) Duration() time.Duration {
	if it > Time5120ms {
		it = Time160ms
	}
	return 160 * time.Millisecond << it
}

var (
	ErrWrongDevice  = errors.New("ambient: unexpected part id")
	ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "ambient"}
)

// Config holds pin and bus assignments.
type Config struct {
	I2CBus      string
	Address     uint16
	INT         hal.PinID
	Gain        Gain
	Integration Integration
	Clock       clock.Clock
}

// DefaultConfig returns 1× gain and 160 ms integration.
func DefaultConfig() Config {
	return Config{Address: Address, Gain: Gain1X, Integration: Time160ms}
}

// MapMikroBUS assigns the socket's I²C bus and INT pin.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.I2CBus = s.I2CBus
	c.INT = s.INT
}

// Data is one raw measurement.
type Data struct {
	ALS uint16
	IR  uint16
}

// Device is an Ambient click instance.
type Device struct {
	bus  hal.I2C
	addr uint16
	irq  hal.Pin
	clk  clock.Clock
	gain Gain
	it   Integration

	w [2]byte
}

// New binds the bus and INT pin.
func New(p hal.Provider, cfg Config) (*Device, error) {
	bus, err := p.I2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	irq, err := hal.InputPin(p, cfg.INT, hal.PullUp, true)
	if err != nil {
		return nil, err
	}
	addr := cfg.Address
	if addr == 0 {
		addr = Address
	}
	return &Device{
		bus:  bus,
		addr: addr,
		irq:  irq,
		clk:  hal.Clock(cfg.Clock),
		gain: cfg.Gain,
		it:   cfg.Integration,
	}, nil
}

func (d *Device) write(reg, val byte) error {
	d.w[0], d.w[1] = reg, val
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

func (d *Device) read(reg byte, buf []byte) error {
	d.w[0] = reg
	return d.bus.Tx(d.addr, d.w[:1], buf)
}

func (d *Device) readByte(reg byte) (byte, error) {
	var b [1]byte
	err := d.read(reg, b[:])
	return b[0], err
}

// DefaultCfg resets the chip, checks its identity and starts continuous
// measurement with the configured gain and integration time.
func (d *Device) DefaultCfg() error {
	if err := d.write(regSystemControl, sysSWReset|sysIntReset); err != nil {
		return err
	}
	d.clk.Sleep(10 * time.Millisecond)
	sys, err := d.readByte(regSystemControl)
	if err != nil {
		return err
	}
	if sys&sysPartMask != partID {
		return ErrWrongDevice
	}
	if m, err := d.readByte(regManufacturer); err != nil {
		return err
	} else if m != manufacturerID {
		return ErrWrongDevice
	}
	if err := d.write(regModeControl1, byte(d.it)); err != nil {
		return err
	}
	if err := d.write(regModeControl2, mode2MeasEn|byte(d.gain)); err != nil {
		return err
	}
	return d.write(regModeControl3, mode3Default)
}

// SetGain changes the ADC gain, keeping measurement enabled.
func (d *Device) SetGain(g Gain) error {
	if g > Gain256X {
		return ErrInvalidParam
	}
	if err := d.write(regModeControl2, mode2MeasEn|byte(g)&mode2GainMask); err != nil {
		return err
	}
	d.gain = g
	return nil
}

// Gain returns the active gain.
func (d *Device) Gain() Gain { return d.gain }

// SetIntegration changes the measurement time.
func (d *Device) SetIntegration(it Integration) error {
	if it > Time5120ms {
		return ErrInvalidParam
	}
	if err := d.write(regModeControl1, byte(it)&mode1TimeMask); err != nil {
		return err
	}
	d.it = it
	return nil
}

// DataValid reports whether a measurement completed since the last read.
func (d *Device) DataValid() (bool, error) {
	v, err := d.readByte(regModeControl2)
	if err != nil {
		return false, err
	}
	return v&mode2Valid != 0, nil
}

// Interrupt returns true while the active-low INT line is asserted.
func (d *Device) Interrupt() bool { return !d.irq.Get() }

// ReadData reads the ALS and IR channels.
func (d *Device) ReadData() (Data, error) {
	var b [4]byte
	if err := d.read(regALSDataLSB, b[:]); err != nil {
		return Data{}, err
	}
	return Data{
		ALS: uint16(b[1])<<8 | uint16(b[0]),
		IR:  uint16(b[3])<<8 | uint16(b[2]),
	}, nil
}

// ReadLux reads the ALS channel and converts it with the active settings.
func (d *Device) ReadLux() (float32, error) {
	data, err := d.ReadData()
	if err != nil {
		return 0, err
	}
	return LuxAt(data.ALS, d.gain, d.it), nil
}

// Thresholds used by ReadLuxAuto.
const (
	saturated = 0xFFFF * 9 / 10
	tooDim    = 100
)

// ReadLuxAuto reads illuminance, stepping the gain down when the channel
// saturates and up when it is too dim. At most two gain changes are made,
// each followed by one integration period.
func (d *Device) ReadLuxAuto() (float32, error) {
	for step := 0; ; step++ {
		data, err := d.ReadData()
		if err != nil {
			return 0, err
		}
		next := d.gain
		switch {
		case data.ALS >= saturated && d.gain > Gain1X:
			next--
		case data.ALS < tooDim && d.gain < Gain256X:
			next++
		}
		if next == d.gain || step == 2 {
			return LuxAt(data.ALS, d.gain, d.it), nil
		}
		if err := d.SetGain(next); err != nil {
			return 0, err
		}
		d.clk.Sleep(d.it.Duration())
	}
}

// Lux converts a count at the reference 160 ms integration time.
func Lux(data uint16, g Gain) float32 {
	return float32(data) / g.Divisor() * Coefficient
}

// LuxAt converts a count taken with integration time it.
func LuxAt(data uint16, g Gain, it Integration) float32 {
	return Lux(data, g) * float32(Time160ms.Duration()) / float32(it.Duration())
}
