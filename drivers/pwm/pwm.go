// Package pwm drives the PWM click, a 16-channel 12-bit PWM controller
// (PCA9685) with a shared prescaler and an active-low output enable.
package pwm

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/mathx"
	"clickboards-go/x/ramp"
)

// Address is the default I²C address with A5..A0 low.
const Address uint16 = 0x40

// Channels on the chip.
const Channels = 16

// Registers.
const (
	regMode1     = 0x00
	regMode2     = 0x01
	regLED0OnL   = 0x06
	regAllLEDOnL = 0xFA
	regPrescale  = 0xFE
)

// MODE1/MODE2 bits.
const (
	mode1Restart = 0x80
	mode1AI      = 0x20
	mode1Sleep   = 0x10
	mode1AllCall = 0x01

	mode2Invert = 0x10
	mode2OutDrv = 0x04

	fullBit = 0x10 // bit 4 of ON_H / OFF_H
)

// Oscillator is the internal clock frequency in Hz.
const Oscillator = 25_000_000

// Prescale limits.
const (
	MinPrescale = 3
	MaxPrescale = 255
)

var ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "pwm"}

// Config holds pin and bus assignments.
type Config struct {
	I2CBus    string
	Address   uint16
	OE        hal.PinID // output enable, active low
	Frequency float64   // Hz
	Invert    bool
	Clock     clock.Clock
}

// DefaultConfig returns 50 Hz totem-pole outputs.
func DefaultConfig() Config {
	return Config{Address: Address, Frequency: 50}
}

// MapMikroBUS assigns the socket's I²C bus; OE sits on the CS pin.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.I2CBus = s.I2CBus
	c.OE = s.CS
}

// Device is a PWM click instance.
type Device struct {
	bus  hal.I2C
	addr uint16
	oe   hal.Pin
	clk  clock.Clock
	cfg  Config
	duty [Channels]int

	w [5]byte
}

// New binds the bus and OE pin. Outputs start disabled (OE high).
func New(p hal.Provider, cfg Config) (*Device, error) {
	bus, err := p.I2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	oe, err := hal.OutputPin(p, cfg.OE, true)
	if err != nil {
		return nil, err
	}
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 50
	}
	return &Device{bus: bus, addr: cfg.Address, oe: oe, clk: hal.Clock(cfg.Clock), cfg: cfg}, nil
}

func (d *Device) write(reg byte, data ...byte) error {
	d.w[0] = reg
	n := copy(d.w[1:], data)
	return d.bus.Tx(d.addr, d.w[:1+n], nil)
}

func (d *Device) readByte(reg byte) (byte, error) {
	var b [1]byte
	d.w[0] = reg
	err := d.bus.Tx(d.addr, d.w[:1], b[:])
	return b[0], err
}

// DefaultCfg enables auto-increment and all-call, selects totem-pole outputs,
// programs the configured frequency, turns every channel off and enables the
// outputs.
func (d *Device) DefaultCfg() error {
	if err := d.write(regMode1, mode1AI|mode1AllCall); err != nil {
		return err
	}
	m2 := byte(mode2OutDrv)
	if d.cfg.Invert {
		m2 |= mode2Invert
	}
	if err := d.write(regMode2, m2); err != nil {
		return err
	}
	if err := d.SetFrequency(d.cfg.Frequency); err != nil {
		return err
	}
	if err := d.SetAll(0, fullBit<<8); err != nil {
		return err
	}
	d.duty = [Channels]int{}
	d.OutputEnable(true)
	return nil
}

// Prescale returns the prescaler value for an output frequency.
func Prescale(hz float64) uint8 {
	if hz <= 0 {
		return MaxPrescale
	}
	v := math.Round(Oscillator/(4096*hz)) - 1
	return uint8(mathx.Clamp(v, MinPrescale, MaxPrescale))
}

// FrequencyOf returns the output frequency produced by a prescaler value.
func FrequencyOf(prescale uint8) float64 {
	return Oscillator / (4096 * (float64(prescale) + 1))
}

// SetFrequency programs the prescaler. The oscillator is put to sleep while
// the prescaler is written and restarted afterwards.
func (d *Device) SetFrequency(hz float64) error {
	if hz <= 0 {
		return ErrInvalidParam
	}
	old, err := d.readByte(regMode1)
	if err != nil {
		return err
	}
	old &^= mode1Restart
	if err := d.write(regMode1, old|mode1Sleep); err != nil {
		return err
	}
	if err := d.write(regPrescale, Prescale(hz)); err != nil {
		return err
	}
	if err := d.write(regMode1, old&^mode1Sleep); err != nil {
		return err
	}
	d.clk.Sleep(500 * time.Microsecond)
	if err := d.write(regMode1, old&^mode1Sleep|mode1Restart|mode1AI); err != nil {
		return err
	}
	d.cfg.Frequency = hz
	return nil
}

// Frequency reads back the effective output frequency.
func (d *Device) Frequency() (float64, error) {
	p, err := d.readByte(regPrescale)
	return FrequencyOf(p), err
}

func channelReg(ch int) byte { return regLED0OnL + 4*byte(ch) }

// SetChannel sets the 12-bit on and off counts of one channel. Bit 12 of
// either count selects full on / full off.
func (d *Device) SetChannel(ch int, on, off uint16) error {
	if ch < 0 || ch >= Channels {
		return ErrInvalidParam
	}
	return d.write(channelReg(ch), byte(on), byte(on>>8)&0x1F, byte(off), byte(off>>8)&0x1F)
}

// SetDuty sets a channel's duty cycle in tenths of a percent (0..1000).
func (d *Device) SetDuty(ch int, permille int) error {
	switch {
	case ch < 0 || ch >= Channels || permille < 0 || permille > 1000:
		return ErrInvalidParam
	}
	var err error
	switch permille {
	case 0:
		err = d.FullOff(ch)
	case 1000:
		err = d.FullOn(ch)
	default:
		err = d.SetChannel(ch, 0, uint16(mathx.RoundDiv(uint32(permille)*4096, 1000)))
	}
	if err == nil {
		d.duty[ch] = permille
	}
	return err
}

// Duty returns the last duty set on ch through SetDuty or Fade.
func (d *Device) Duty(ch int) int {
	if ch < 0 || ch >= Channels {
		return 0
	}
	return d.duty[ch]
}

// Fade moves ch from its current duty to permille in steps spread over
// total. It blocks until the last step is written.
func (d *Device) Fade(ch, permille int, total time.Duration, steps int) error {
	if ch < 0 || ch >= Channels || permille < 0 || permille > 1000 {
		return ErrInvalidParam
	}
	return ramp.Linear(d.duty[ch], permille, total, steps, d.clk.Sleep, func(l int) error {
		return d.SetDuty(ch, l)
	})
}

// FullOn drives a channel constantly on.
func (d *Device) FullOn(ch int) error { return d.SetChannel(ch, fullBit<<8, 0) }

// FullOff drives a channel constantly off.
func (d *Device) FullOff(ch int) error { return d.SetChannel(ch, 0, fullBit<<8) }

// SetAll writes the same on/off counts to every channel.
func (d *Device) SetAll(on, off uint16) error {
	return d.write(regAllLEDOnL, byte(on), byte(on>>8)&0x1F, byte(off), byte(off>>8)&0x1F)
}

// ReadChannel returns the on and off counts, including the full bits.
func (d *Device) ReadChannel(ch int) (on, off uint16, err error) {
	if ch < 0 || ch >= Channels {
		return 0, 0, ErrInvalidParam
	}
	var b [4]byte
	d.w[0] = channelReg(ch)
	if err := d.bus.Tx(d.addr, d.w[:1], b[:]); err != nil {
		return 0, 0, err
	}
	return uint16(b[1])<<8 | uint16(b[0]), uint16(b[3])<<8 | uint16(b[2]), nil
}

// Sleep stops the oscillator; outputs are off.
func (d *Device) Sleep() error {
	m, err := d.readByte(regMode1)
	if err != nil {
		return err
	}
	return d.write(regMode1, m&^mode1Restart|mode1Sleep)
}

// Wake restarts the oscillator and resumes the previous PWM state.
func (d *Device) Wake() error {
	m, err := d.readByte(regMode1)
	if err != nil {
		return err
	}
	if err := d.write(regMode1, m&^(mode1Sleep|mode1Restart)); err != nil {
		return err
	}
	d.clk.Sleep(500 * time.Microsecond)
	if m&mode1Restart != 0 {
		return d.write(regMode1, m&^mode1Sleep|mode1Restart)
	}
	return nil
}

// OutputEnable drives the active-low OE pin.
func (d *Device) OutputEnable(on bool) { d.oe.Set(!on) }
