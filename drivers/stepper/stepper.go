// Package stepper drives Stepper clicks that switch a unipolar motor's four
// coils through a Darlington array (ULN2003 class). Each coil is a GPIO.
package stepper

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/mathx"
)

var ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "stepper"}

// Mode selects the coil sequence.
type Mode uint8

const (
	Wave Mode = iota // one coil at a time, 4 phases
	Full             // two coils, 4 phases, full torque
	Half             // alternating one/two coils, 8 phases
)

// Coil patterns, bit 0 = IN1.
var (
	waveSeq = []uint8{0b0001, 0b0010, 0b0100, 0b1000}
	fullSeq = []uint8{0b0011, 0b0110, 0b1100, 0b1001}
	halfSeq = []uint8{0b0001, 0b0011, 0b0010, 0b0110, 0b0100, 0b1100, 0b1000, 0b1001}
)

func (m Mode) seq() []uint8 {
	switch m {
	case Full:
		return fullSeq
	case Half:
		return halfSeq
	default:
		return waveSeq
	}
}

// Config holds the coil pins and motion defaults.
type Config struct {
	IN1, IN2, IN3, IN4 hal.PinID
	Mode               Mode
	Speed              float64 // steps per second
	Clock              clock.Clock
}

// DefaultConfig returns full stepping at 100 steps/s.
func DefaultConfig() Config { return Config{Mode: Full, Speed: 100} }

// MapMikroBUS assigns IN1..IN4 to AN, RST, CS and PWM.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.IN1, c.IN2, c.IN3, c.IN4 = s.AN, s.RST, s.CS, s.PWM
}

// Device is a Stepper click instance.
type Device struct {
	coils [4]hal.Pin
	clk   clock.Clock
	mode  Mode
	delay time.Duration
	phase int
	pos   int64
}

// New binds the coil pins, all de-energised.
func New(p hal.Provider, cfg Config) (*Device, error) {
	if cfg.Mode > Half {
		return nil, ErrInvalidParam
	}
	d := &Device{clk: hal.Clock(cfg.Clock), mode: cfg.Mode}
	for i, id := range [4]hal.PinID{cfg.IN1, cfg.IN2, cfg.IN3, cfg.IN4} {
		pin, err := hal.OutputPin(p, id, false)
		if err != nil {
			return nil, err
		}
		d.coils[i] = pin
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 100
	}
	if err := d.SetSpeed(cfg.Speed); err != nil {
		return nil, err
	}
	return d, nil
}

// DefaultCfg releases the coils and zeroes the position counter.
func (d *Device) DefaultCfg() error {
	d.Release()
	d.phase, d.pos = 0, 0
	return nil
}

// SetSpeed sets the step rate.
func (d *Device) SetSpeed(stepsPerSecond float64) error {
	if stepsPerSecond <= 0 || math.IsInf(stepsPerSecond, 0) || math.IsNaN(stepsPerSecond) {
		return ErrInvalidParam
	}
	d.delay = time.Duration(float64(time.Second) / stepsPerSecond)
	return nil
}

// StepDelay returns the pause after each step.
func (d *Device) StepDelay() time.Duration { return d.delay }

// SetMode switches the sequence, keeping the rotor at the nearest phase.
func (d *Device) SetMode(m Mode) error {
	if m > Half {
		return ErrInvalidParam
	}
	switch {
	case d.mode == m:
	case m == Half && d.mode == Wave:
		d.phase *= 2
	case m == Half && d.mode == Full:
		d.phase = 2*d.phase + 1
	case d.mode == Half:
		d.phase /= 2
	}
	d.mode = m
	return nil
}

// Mode returns the active sequence.
func (d *Device) Mode() Mode { return d.mode }

// Step moves n steps; negative n turns backwards. Each step energises the
// next pattern and waits one step delay.
func (d *Device) Step(n int) {
	dir := 1
	if n < 0 {
		dir, n = -1, -n
	}
	seq := d.mode.seq()
	for i := 0; i < n; i++ {
		d.phase = mathx.Mod(d.phase+dir, len(seq))
		d.energise(seq[d.phase])
		d.pos += int64(dir)
		d.clk.Sleep(d.delay)
	}
}

// Rotate turns by degrees for a motor with stepsPerRev full steps per
// revolution. Half stepping doubles the step count.
func (d *Device) Rotate(degrees float64, stepsPerRev int) error {
	if stepsPerRev <= 0 {
		return ErrInvalidParam
	}
	per := float64(stepsPerRev)
	if d.mode == Half {
		per *= 2
	}
	d.Step(int(math.Round(degrees / 360 * per)))
	return nil
}

// Hold energises the current phase without moving.
func (d *Device) Hold() { d.energise(d.mode.seq()[d.phase]) }

// Release de-energises every coil.
func (d *Device) Release() { d.energise(0) }

// Position returns the step counter since DefaultCfg.
func (d *Device) Position() int64 { return d.pos }

// PhaseIndex returns the index into the active sequence.
func (d *Device) PhaseIndex() int { return d.phase }

func (d *Device) energise(pattern uint8) {
	for i, c := range d.coils {
		c.Set(pattern&(1<<i) != 0)
	}
}
