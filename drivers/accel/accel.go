// Package accel drives the Accel click, a three-axis accelerometer of the
// LIS2DH12 family reachable over either I²C or SPI.
//
//	cfg := accel.DefaultConfig()
//	cfg.MapMikroBUS(socket)
//	d, err := accel.New(provider, cfg)
//	err = d.DefaultCfg()
//	a, err := d.ReadAxes() // g
//
// The bus is chosen once, in New, from Config.Driver.
package accel

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// Driver selects the bus.
type Driver uint8

const (
	DriverI2C Driver = iota
	DriverSPI
)

// FullScale is the ±g range.
type FullScale uint8

const (
	FS2G FullScale = iota
	FS4G
	FS8G
	FS16G
)

// DataRate is the CTRL_REG1 ODR code.
type DataRate uint8

const (
	ODRPowerDown DataRate = iota
	ODR1Hz
	ODR10Hz
	ODR25Hz
	ODR50Hz
	ODR100Hz
	ODR200Hz
	ODR400Hz
)

var (
	ErrWrongDevice  = errors.New("accel: unexpected WHO_AM_I")
	ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "accel"}
)

// Config holds pin and bus assignments. Zero values take defaults in New.
type Config struct {
	Driver Driver

	I2CBus  string
	Address uint16

	SPIBus   string
	SPISpeed uint32 // Hz
	CS       hal.PinID

	INT hal.PinID // INT1, data-ready when enabled

	FSR FullScale
	ODR DataRate

	Clock clock.Clock
}

// DefaultConfig returns an I²C configuration at ±2 g and 100 Hz.
func DefaultConfig() Config {
	return Config{
		Driver:   DriverI2C,
		Address:  AddressHigh,
		SPISpeed: 1_000_000,
		FSR:      FS2G,
		ODR:      ODR100Hz,
	}
}

// MapMikroBUS assigns the socket's bus names and pins.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.I2CBus = s.I2CBus
	c.SPIBus = s.SPIBus
	c.CS = s.CS
	c.INT = s.INT
}

// Axes is one acceleration sample in g.
type Axes struct{ X, Y, Z float32 }

// Raw is one sample as left-justified register counts.
type Raw struct{ X, Y, Z int16 }

// Device is an Accel click instance.
type Device struct {
	io  regIO
	irq hal.Pin
	clk clock.Clock
	fsr FullScale
	odr DataRate
}

// New binds the configured bus and pins. It does not touch the chip.
func New(p hal.Provider, cfg Config) (*Device, error) {
	if cfg.FSR > FS16G || cfg.ODR > ODR400Hz {
		return nil, ErrInvalidParam
	}
	d := &Device{clk: hal.Clock(cfg.Clock), fsr: cfg.FSR, odr: cfg.ODR}
	switch cfg.Driver {
	case DriverI2C:
		bus, err := p.I2C(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		addr := cfg.Address
		if addr == 0 {
			addr = AddressHigh
		}
		d.io = &i2cIO{bus: bus, addr: addr}
	case DriverSPI:
		speed := cfg.SPISpeed
		if speed == 0 {
			speed = 1_000_000
		}
		bus, err := p.SPI(cfg.SPIBus, hal.SPIConfig{Frequency: speed, Mode: 3})
		if err != nil {
			return nil, err
		}
		cs, err := hal.OutputPin(p, cfg.CS, true)
		if err != nil {
			return nil, err
		}
		d.io = &spiIO{dev: hal.SPIDevice{Bus: bus, CS: cs}}
	default:
		return nil, ErrInvalidParam
	}
	pin, err := hal.InputPin(p, cfg.INT, hal.PullNone, false)
	if err != nil {
		return nil, err
	}
	d.irq = pin
	return d, nil
}

// DefaultCfg checks the part ID, reboots the trimming registers and brings
// the chip to high-resolution mode at the configured rate and range.
func (d *Device) DefaultCfg() error {
	id, err := d.WhoAmI()
	if err != nil {
		return err
	}
	if id != whoAmIValue {
		return ErrWrongDevice
	}
	if err := d.io.write(regCtrl5, ctrl5Boot); err != nil {
		return err
	}
	d.clk.Sleep(5 * time.Millisecond)
	if err := d.io.write(regCtrl1, byte(d.odr)<<4|ctrl1XYZEn); err != nil {
		return err
	}
	if err := d.io.write(regCtrl4, ctrl4BDU|ctrl4HR|byte(d.fsr)<<4); err != nil {
		return err
	}
	if err := d.io.write(regCtrl3, ctrl3I1ZYXDA); err != nil {
		return err
	}
	return d.io.write(regTempCfg, tempCfgEn)
}

// WhoAmI reads the identification register.
func (d *Device) WhoAmI() (byte, error) {
	var b [1]byte
	err := d.io.read(regWhoAmI, b[:])
	return b[0], err
}

// SetFSR changes the full-scale range.
func (d *Device) SetFSR(fs FullScale) error {
	if fs > FS16G {
		return ErrInvalidParam
	}
	if err := d.modify(regCtrl4, ctrl4FSMask, byte(fs)<<4); err != nil {
		return err
	}
	d.fsr = fs
	return nil
}

// FSR returns the range currently applied to conversions.
func (d *Device) FSR() FullScale { return d.fsr }

// SetODR changes the output data rate.
func (d *Device) SetODR(odr DataRate) error {
	if odr > ODR400Hz {
		return ErrInvalidParam
	}
	if err := d.modify(regCtrl1, ctrl1ODRMask, byte(odr)<<4); err != nil {
		return err
	}
	d.odr = odr
	return nil
}

func (d *Device) modify(reg, mask, val byte) error {
	var b [1]byte
	if err := d.io.read(reg, b[:]); err != nil {
		return err
	}
	return d.io.write(reg, b[0]&^mask|val&mask)
}

// DataReady reports whether a new XYZ sample is available.
func (d *Device) DataReady() (bool, error) {
	var b [1]byte
	if err := d.io.read(regStatus, b[:]); err != nil {
		return false, err
	}
	return b[0]&statusZYXDA != 0, nil
}

// Interrupt returns the INT1 level (data-ready after DefaultCfg).
func (d *Device) Interrupt() bool { return d.irq.Get() }

// ReadRaw reads the three output registers in one burst.
func (d *Device) ReadRaw() (Raw, error) {
	var b [6]byte
	if err := d.io.read(regOutXL, b[:]); err != nil {
		return Raw{}, err
	}
	return Raw{
		X: int16(uint16(b[1])<<8 | uint16(b[0])),
		Y: int16(uint16(b[3])<<8 | uint16(b[2])),
		Z: int16(uint16(b[5])<<8 | uint16(b[4])),
	}, nil
}

// ReadAxes reads one sample and scales it to g.
func (d *Device) ReadAxes() (Axes, error) {
	r, err := d.ReadRaw()
	if err != nil {
		return Axes{}, err
	}
	return Axes{X: RawToG(r.X, d.fsr), Y: RawToG(r.Y, d.fsr), Z: RawToG(r.Z, d.fsr)}, nil
}

// ReadTemperature returns the die temperature in °C. The sensor only tracks
// changes; absolute accuracy is roughly ±2 °C around the 25 °C reference.
func (d *Device) ReadTemperature() (float32, error) {
	var st [1]byte
	if err := d.io.read(regStatusAux, st[:]); err != nil {
		return 0, err
	}
	if st[0]&statusAuxTDA == 0 {
		return 0, errcode.NotReady
	}
	var b [2]byte
	if err := d.io.read(regOutTempL, b[:]); err != nil {
		return 0, err
	}
	raw := int16(uint16(b[1])<<8 | uint16(b[0]))
	return 25 + float32(raw)/256, nil
}

// resolution is the left-justification shift of a 12-bit sample.
const resolution = 16

// fsrSens is counts per g after removing the justification.
var fsrSens = [...]float32{
	FS2G:  1000,
	FS4G:  500,
	FS8G:  250,
	FS16G: 1000.0 / 12,
}

// RawToG converts a left-justified count to g: raw / fsrSens / resolution.
func RawToG(raw int16, fs FullScale) float32 {
	if int(fs) >= len(fsrSens) {
		fs = FS2G
	}
	return float32(raw) / fsrSens[fs] / resolution
}
