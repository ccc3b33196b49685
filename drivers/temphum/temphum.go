// Package temphum drives the Temp&Hum click built on an AHT20
// temperature/humidity sensor. It exposes a two-phase measurement API:
//
//	d.Trigger()            // start a conversion (no blocking)
//	s, err := d.Collect()  // fetch when ready; ErrNotReady while busy
//
// Read performs trigger plus bounded polling. Conversions use fixed point:
// Sample.DeciCelsius and Sample.DeciRelHumidity return tenths of units.
package temphum

import (
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// I2C address.
const Address uint16 = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var (
	ErrTimeout  = &errcode.E{C: errcode.Timeout, Op: "temphum"}
	ErrNotReady = &errcode.E{C: errcode.NotReady, Op: "temphum"}
	ErrProtocol = &errcode.E{C: errcode.Error, Op: "temphum", Msg: "crc mismatch"}
)

// Config holds the bus assignment and timing. Zero fields take defaults.
type Config struct {
	I2CBus  string
	Address uint16
	// PollInterval separates Collect attempts in Read. Default 15 ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in Read. Default 250 ms.
	CollectTimeout time.Duration
	// ConversionTime is the nominal delay between Trigger and a ready
	// sample. Default 80 ms.
	ConversionTime time.Duration
	// CheckCRC verifies the CRC-8 trailer of every sample.
	CheckCRC bool
	Clock    clock.Clock
}

// DefaultConfig returns the datasheet timings with CRC checking on.
func DefaultConfig() Config {
	return Config{
		Address:        Address,
		PollInterval:   15 * time.Millisecond,
		CollectTimeout: 250 * time.Millisecond,
		ConversionTime: 80 * time.Millisecond,
		CheckCRC:       true,
	}
}

// MapMikroBUS assigns the socket's I²C bus.
func (c *Config) MapMikroBUS(s hal.Socket) { c.I2CBus = s.I2CBus }

// Sample is one raw measurement (20 bits each).
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// DeciRelHumidity returns tenths of %RH.
func (s Sample) DeciRelHumidity() int32 {
	return int32(s.RawHumidity) * 1000 / 0x100000
}

// DeciCelsius returns tenths of °C.
func (s Sample) DeciCelsius() int32 {
	return int32(s.RawTemp)*2000/0x100000 - 500
}

// RelHumidity returns %RH.
func (s Sample) RelHumidity() float32 {
	return float32(s.RawHumidity) * 100 / 0x100000
}

// Celsius returns °C.
func (s Sample) Celsius() float32 {
	return float32(s.RawTemp)*200/0x100000 - 50
}

// Device is a Temp&Hum click instance.
type Device struct {
	bus  hal.I2C
	addr uint16
	cfg  Config
	clk  clock.Clock

	buf  [7]byte
	last Sample
}

// New binds the bus. It does not touch the sensor.
func New(p hal.Provider, cfg Config) (*Device, error) {
	bus, err := p.I2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Address == 0 {
		cfg.Address = def.Address
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = def.CollectTimeout
	}
	if cfg.ConversionTime <= 0 {
		cfg.ConversionTime = def.ConversionTime
	}
	return &Device{bus: bus, addr: cfg.Address, cfg: cfg, clk: hal.Clock(cfg.Clock)}, nil
}

// DefaultCfg soft-resets the sensor and loads calibration if the status
// byte says it is missing.
func (d *Device) DefaultCfg() error {
	if err := d.Reset(); err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.addr, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	d.clk.Sleep(10 * time.Millisecond)
	return nil
}

// Reset issues a soft reset and waits the 20 ms the sensor needs.
func (d *Device) Reset() error {
	if err := d.bus.Tx(d.addr, []byte{cmdSoftReset}, nil); err != nil {
		return err
	}
	d.clk.Sleep(20 * time.Millisecond)
	return nil
}

// Status returns the status byte.
func (d *Device) Status() (byte, error) {
	var b [1]byte
	if err := d.bus.Tx(d.addr, []byte{cmdStatus}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Trigger starts a conversion.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.addr, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// ConversionTime is the nominal wait between Trigger and Collect.
func (d *Device) ConversionTime() time.Duration { return d.cfg.ConversionTime }

// Collect reads one sample. It returns ErrNotReady while the sensor is busy
// or uncalibrated.
func (d *Device) Collect() (Sample, error) {
	data := d.buf[:]
	if err := d.bus.Tx(d.addr, nil, data); err != nil {
		return Sample{}, err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	if d.cfg.CheckCRC && crc8(data[:6]) != data[6] {
		return Sample{}, ErrProtocol
	}
	s := Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}
	d.last = s
	return s, nil
}

// Read triggers a conversion and polls until a sample arrives or
// CollectTimeout elapses.
func (d *Device) Read() (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	deadline := d.clk.Now().Add(d.cfg.CollectTimeout)
	for {
		s, err := d.Collect()
		if err != ErrNotReady {
			return s, err
		}
		if !d.clk.Now().Before(deadline) {
			return Sample{}, ErrTimeout
		}
		d.clk.Sleep(d.cfg.PollInterval)
	}
}

// Last returns the most recent sample.
func (d *Device) Last() Sample { return d.last }

// crc8 uses polynomial 0x31, init 0xFF.
func crc8(b []byte) byte {
	crc := byte(0xFF)
	for _, v := range b {
		crc ^= v
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
