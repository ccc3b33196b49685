// Package rtc drives the RTC click (MCP79410 class): a battery-backed
// real-time clock with BCD time registers, one alarm routed to the MFP pin
// and 64 bytes of SRAM.
//
// All time fields are stored in BCD; the helpers here convert to and from
// plain integers. The oscillator start bit (ST) shares the seconds register
// and is preserved by every seconds write.
package rtc

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/mathx"
)

var (
	ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "rtc"}
	ErrOscillator   = errors.New("rtc: oscillator did not start")
)

// Config holds pin and bus assignments.
type Config struct {
	I2CBus  string
	Address uint16
	MFP     hal.PinID // multi-function pin (alarm output), open-drain
	Clock   clock.Clock
}

// DefaultConfig returns the fixed RTCC address.
func DefaultConfig() Config { return Config{Address: Address} }

// MapMikroBUS assigns the socket's I²C bus and INT pin to MFP.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.I2CBus = s.I2CBus
	c.MFP = s.INT
}

// Time is a 24-hour time of day.
type Time struct{ Hours, Minutes, Seconds uint8 }

// Date is a calendar date. Weekday runs 1..7, Year 2000..2099.
type Date struct {
	Weekday uint8
	Day     uint8
	Month   uint8
	Year    uint16
}

// Device is an RTC click instance.
type Device struct {
	bus  hal.I2C
	addr uint16
	mfp  hal.Pin
	clk  clock.Clock

	w [9]byte
}

// New binds the bus and MFP pin.
func New(p hal.Provider, cfg Config) (*Device, error) {
	bus, err := p.I2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	mfp, err := hal.InputPin(p, cfg.MFP, hal.PullUp, true)
	if err != nil {
		return nil, err
	}
	addr := cfg.Address
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr, mfp: mfp, clk: hal.Clock(cfg.Clock)}, nil
}

func (d *Device) write(reg byte, data ...byte) error {
	d.w[0] = reg
	n := copy(d.w[1:], data)
	return d.bus.Tx(d.addr, d.w[:1+n], nil)
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

func (d *Device) modify(reg, mask, val byte) error {
	v, err := d.readByte(reg)
	if err != nil {
		return err
	}
	return d.write(reg, v&^mask|val&mask)
}

// DefaultCfg enables battery backup, selects 24-hour mode, disables alarms
// and square wave output and starts the oscillator.
func (d *Device) DefaultCfg() error {
	if err := d.write(regControl, 0); err != nil {
		return err
	}
	if err := d.EnableBattery(true); err != nil {
		return err
	}
	if err := d.modify(regHour, hour12, 0); err != nil {
		return err
	}
	return d.Start()
}

// Start sets ST and waits (up to 50 ms) for OSCRUN.
func (d *Device) Start() error {
	if err := d.modify(regSec, secST, secST); err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		ok, err := d.OscillatorRunning()
		if err != nil || ok {
			return err
		}
		d.clk.Sleep(5 * time.Millisecond)
	}
	return ErrOscillator
}

// Stop clears ST, halting timekeeping.
func (d *Device) Stop() error { return d.modify(regSec, secST, 0) }

// OscillatorRunning reports the OSCRUN status bit.
func (d *Device) OscillatorRunning() (bool, error) {
	v, err := d.readByte(regWkDay)
	return v&wkdOSCRun != 0, err
}

// EnableBattery switches VBAT backup on or off.
func (d *Device) EnableBattery(on bool) error {
	var v byte
	if on {
		v = wkdVBatEn
	}
	return d.modify(regWkDay, wkdVBatEn, v)
}

// PowerFailed reports and clears the power-fail flag.
func (d *Device) PowerFailed() (bool, error) {
	v, err := d.readByte(regWkDay)
	if err != nil {
		return false, err
	}
	if v&wkdPwrFail == 0 {
		return false, nil
	}
	return true, d.write(regWkDay, v&^wkdPwrFail)
}

// SetTimeSeconds stores s % 60.
func (d *Device) SetTimeSeconds(s uint8) error {
	return d.modify(regSec, secMask, mathx.ToBCD(s%60))
}

// GetTimeSeconds returns the seconds field.
func (d *Device) GetTimeSeconds() (uint8, error) {
	v, err := d.readByte(regSec)
	return mathx.FromBCD(v & secMask), err
}

// SetTimeMinutes stores m % 60.
func (d *Device) SetTimeMinutes(m uint8) error {
	return d.write(regMin, mathx.ToBCD(m%60))
}

// GetTimeMinutes returns the minutes field.
func (d *Device) GetTimeMinutes() (uint8, error) {
	v, err := d.readByte(regMin)
	return mathx.FromBCD(v & minMask), err
}

// SetTimeHours stores h % 24 in 24-hour mode.
func (d *Device) SetTimeHours(h uint8) error {
	return d.write(regHour, mathx.ToBCD(h%24))
}

// GetTimeHours returns the hours field (24-hour mode).
func (d *Device) GetTimeHours() (uint8, error) {
	v, err := d.readByte(regHour)
	return mathx.FromBCD(v & hourMask), err
}

// SetTime writes hours, minutes and seconds, keeping the oscillator state.
func (d *Device) SetTime(t Time) error {
	if t.Hours > 23 || t.Minutes > 59 || t.Seconds > 59 {
		return ErrInvalidParam
	}
	st, err := d.readByte(regSec)
	if err != nil {
		return err
	}
	return d.write(regSec,
		st&secST|mathx.ToBCD(t.Seconds),
		mathx.ToBCD(t.Minutes),
		mathx.ToBCD(t.Hours),
	)
}

// GetTime reads hours, minutes and seconds in one burst.
func (d *Device) GetTime() (Time, error) {
	var b [3]byte
	if err := d.read(regSec, b[:]); err != nil {
		return Time{}, err
	}
	return Time{
		Seconds: mathx.FromBCD(b[0] & secMask),
		Minutes: mathx.FromBCD(b[1] & minMask),
		Hours:   mathx.FromBCD(b[2] & hourMask),
	}, nil
}

// SetDate writes weekday, day, month and year, keeping the status bits of
// the weekday register.
func (d *Device) SetDate(dt Date) error {
	if dt.Weekday < 1 || dt.Weekday > 7 || dt.Day < 1 || dt.Day > 31 ||
		dt.Month < 1 || dt.Month > 12 || dt.Year < 2000 || dt.Year > 2099 {
		return ErrInvalidParam
	}
	wk, err := d.readByte(regWkDay)
	if err != nil {
		return err
	}
	return d.write(regWkDay,
		wk&wkdVBatEn|dt.Weekday,
		mathx.ToBCD(dt.Day),
		mathx.ToBCD(dt.Month),
		mathx.ToBCD(uint8(dt.Year-2000)),
	)
}

// GetDate reads the calendar registers.
func (d *Device) GetDate() (Date, error) {
	var b [4]byte
	if err := d.read(regWkDay, b[:]); err != nil {
		return Date{}, err
	}
	return Date{
		Weekday: b[0] & wkdMask,
		Day:     mathx.FromBCD(b[1] & dateMask),
		Month:   mathx.FromBCD(b[2] & monthMask),
		Year:    2000 + uint16(mathx.FromBCD(b[3])),
	}, nil
}

// LeapYear reports the LPYR flag maintained by the chip.
func (d *Device) LeapYear() (bool, error) {
	v, err := d.readByte(regMonth)
	return v&monthLPYR != 0, err
}

// SetDateTime writes t (converted to UTC) and restarts the oscillator.
func (d *Device) SetDateTime(t time.Time) error {
	t = t.UTC()
	if t.Year() < 2000 || t.Year() > 2099 {
		return ErrInvalidParam
	}
	wk, err := d.readByte(regWkDay)
	if err != nil {
		return err
	}
	if err := d.Stop(); err != nil {
		return err
	}
	return d.write(regSec,
		secST|mathx.ToBCD(uint8(t.Second())),
		mathx.ToBCD(uint8(t.Minute())),
		mathx.ToBCD(uint8(t.Hour())),
		wk&wkdVBatEn|weekday(t),
		mathx.ToBCD(uint8(t.Day())),
		mathx.ToBCD(uint8(t.Month())),
		mathx.ToBCD(uint8(t.Year()-2000)),
	)
}

// DateTime reads the full timestamp in UTC.
func (d *Device) DateTime() (time.Time, error) {
	var b [7]byte
	if err := d.read(regSec, b[:]); err != nil {
		return time.Time{}, err
	}
	return time.Date(
		2000+int(mathx.FromBCD(b[6])),
		time.Month(mathx.FromBCD(b[5]&monthMask)),
		int(mathx.FromBCD(b[4]&dateMask)),
		int(mathx.FromBCD(b[2]&hourMask)),
		int(mathx.FromBCD(b[1]&minMask)),
		int(mathx.FromBCD(b[0]&secMask)),
		0, time.UTC), nil
}

// weekday maps Sunday..Saturday to 1..7.
func weekday(t time.Time) byte { return byte(t.Weekday()) + 1 }

// AlarmMatch selects which fields must match for alarm 0 to fire.
type AlarmMatch uint8

const (
	MatchSeconds AlarmMatch = iota
	MatchMinutes
	MatchHours
	MatchWeekday
	MatchDate
	MatchAll AlarmMatch = 7
)

// SetAlarm programs and enables alarm 0. MFP goes low when it fires.
func (d *Device) SetAlarm(match AlarmMatch, at time.Time) error {
	if match > MatchDate && match != MatchAll {
		return ErrInvalidParam
	}
	at = at.UTC()
	if err := d.write(regAlm0Sec,
		mathx.ToBCD(uint8(at.Second())),
		mathx.ToBCD(uint8(at.Minute())),
		mathx.ToBCD(uint8(at.Hour())),
		byte(match)<<4|weekday(at),
		mathx.ToBCD(uint8(at.Day())),
		mathx.ToBCD(uint8(at.Month())),
	); err != nil {
		return err
	}
	return d.modify(regControl, ctrlALM0En|ctrlSQWEn, ctrlALM0En)
}

// AlarmTriggered reports the ALM0IF flag.
func (d *Device) AlarmTriggered() (bool, error) {
	v, err := d.readByte(regAlm0WkDay)
	return v&almIF != 0, err
}

// ClearAlarm clears ALM0IF, releasing MFP.
func (d *Device) ClearAlarm() error { return d.modify(regAlm0WkDay, almIF, 0) }

// DisableAlarm turns alarm 0 off.
func (d *Device) DisableAlarm() error { return d.modify(regControl, ctrlALM0En, 0) }

// AlarmAsserted reads the MFP line (active-low).
func (d *Device) AlarmAsserted() bool { return !d.mfp.Get() }

// SetOutput drives MFP as a general output when no alarm or square wave is
// enabled.
func (d *Device) SetOutput(high bool) error {
	var v byte
	if high {
		v = ctrlOut
	}
	return d.modify(regControl, ctrlOut, v)
}

// SetTrim writes the digital trim register (sign bit 7, magnitude 6:0).
// The magnitude field holds 0..127, so -128 is rejected.
func (d *Device) SetTrim(ppmSteps int8) error {
	if ppmSteps == -128 {
		return ErrInvalidParam
	}
	v := byte(mathx.Abs(ppmSteps)) & 0x7F
	if ppmSteps > 0 {
		v |= 0x80
	}
	return d.write(regOscTrim, v)
}

// WriteSRAM stores data at offset within the 64-byte battery-backed SRAM.
func (d *Device) WriteSRAM(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > SRAMSize {
		return ErrInvalidParam
	}
	for len(data) > 0 {
		n := len(data)
		if n > len(d.w)-1 {
			n = len(d.w) - 1
		}
		if err := d.write(byte(sramStart+offset), data[:n]...); err != nil {
			return err
		}
		offset += n
		data = data[n:]
	}
	return nil
}

// ReadSRAM fills buf from offset.
func (d *Device) ReadSRAM(offset int, buf []byte) error {
	if offset < 0 || offset+len(buf) > SRAMSize {
		return ErrInvalidParam
	}
	return d.read(byte(sramStart+offset), buf)
}
