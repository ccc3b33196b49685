// Package gnss drives GNSS clicks that stream NMEA 0183 over UART.
//
// Bytes are accumulated in a bounded ring; Process pops complete sentences
// and Update folds the common sentence types (GGA, RMC, GLL, GSA, VTG) into
// a Fix. ParseField gives positional access to any sentence, including ones
// the parser does not know.
package gnss

import (
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/ring"
	"clickboards-go/x/strx"
)

var (
	ErrNoCommand = &errcode.E{C: errcode.Error, Op: "gnss", Msg: "command not found"}
	ErrNoField   = &errcode.E{C: errcode.Error, Op: "gnss", Msg: "no such field"}
	ErrEmpty     = &errcode.E{C: errcode.NotReady, Op: "gnss", Msg: "field empty"}
)

// Config holds pin and port assignments.
type Config struct {
	UART       string
	Baud       uint32
	RST        hal.PinID // active-low reset
	WAKEUP     hal.PinID // optional force-on
	BufferSize int
	Clock      clock.Clock
}

// DefaultConfig returns 9600 baud and a 1 KiB line buffer.
func DefaultConfig() Config {
	return Config{Baud: 9600, BufferSize: 1024}
}

// MapMikroBUS assigns the socket's UART, RST and AN (wake-up) pins.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.UART = s.UARTBus
	c.RST = s.RST
	c.WAKEUP = s.AN
}

// Fix is the navigation state accumulated from parsed sentences.
type Fix struct {
	Time       time.Time // UTC; zero until a time is seen
	Valid      bool      // RMC/GLL status 'A'
	Latitude   float64
	Longitude  float64
	Altitude   float64 // metres above MSL
	Quality    string  // GGA fix quality ("0" = invalid)
	Satellites int
	FixType    string // GSA: "1" none, "2" 2D, "3" 3D
	PDOP       float64
	HDOP       float64
	VDOP       float64
	SpeedKnots float64
	SpeedKPH   float64
	Course     float64
}

// Device is a GNSS click instance.
type Device struct {
	uart   hal.UART
	rst    hal.Pin
	wakeup hal.Pin
	clk    clock.Clock
	rx     *ring.Ring
	chunk  [64]byte

	fix  Fix
	date nmea.Date
}

// New binds the UART and control pins. RST is released (high).
func New(p hal.Provider, cfg Config) (*Device, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	u, err := p.UART(cfg.UART, hal.UARTConfig{Baud: cfg.Baud}.WithDefaults())
	if err != nil {
		return nil, err
	}
	rst, err := hal.OutputPin(p, cfg.RST, true)
	if err != nil {
		return nil, err
	}
	wake, err := hal.OutputPin(p, cfg.WAKEUP, false)
	if err != nil {
		return nil, err
	}
	return &Device{
		uart:   u,
		rst:    rst,
		wakeup: wake,
		clk:    hal.Clock(cfg.Clock),
		rx:     ring.NewAtLeast(cfg.BufferSize),
	}, nil
}

// DefaultCfg wakes the receiver and resets it.
func (d *Device) DefaultCfg() error {
	d.Wake(true)
	d.Reset()
	return nil
}

// Reset pulses RST low for 10 ms and waits for the receiver to boot.
func (d *Device) Reset() {
	hal.Pulse(d.clk, d.rst, false, 10*time.Millisecond)
	d.clk.Sleep(100 * time.Millisecond)
	d.rx.Reset()
}

// Wake drives the WAKEUP pin.
func (d *Device) Wake(on bool) { d.wakeup.Set(on) }

// Process drains the UART into the ring and returns every complete sentence
// (lines starting with '$'). Partial sentences stay buffered.
func (d *Device) Process() []string {
	for {
		n, _ := d.uart.Read(d.chunk[:])
		if n == 0 {
			break
		}
		d.rx.Write(d.chunk[:n])
	}
	var out []string
	for {
		line, ok := d.rx.ReadLine()
		if !ok {
			return out
		}
		s := strings.TrimSpace(string(line))
		if i := strings.IndexByte(s, '$'); i >= 0 {
			out = append(out, s[i:])
		}
	}
}

// Update processes pending sentences into the fix. It returns how many were
// applied; parse failures are collected into the error without stopping.
func (d *Device) Update() (int, error) {
	var errs error
	n := 0
	for _, raw := range d.Process() {
		s, err := nmea.Parse(raw)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if d.apply(s) {
			n++
		}
	}
	return n, errs
}

func (d *Device) apply(s nmea.Sentence) bool {
	f := &d.fix
	switch m := s.(type) {
	case nmea.GGA:
		f.Quality = m.FixQuality
		f.Satellites = int(m.NumSatellites)
		f.HDOP = m.HDOP
		if m.FixQuality != nmea.Invalid {
			f.Latitude, f.Longitude, f.Altitude = m.Latitude, m.Longitude, m.Altitude
		}
		d.setTime(m.Time)
	case nmea.RMC:
		f.Valid = m.Validity == nmea.ValidRMC
		if f.Valid {
			f.Latitude, f.Longitude = m.Latitude, m.Longitude
			f.SpeedKnots, f.Course = m.Speed, m.Course
		}
		if m.Date.Valid {
			d.date = m.Date
		}
		d.setTime(m.Time)
	case nmea.GLL:
		f.Valid = m.Validity == nmea.ValidGLL
		if f.Valid {
			f.Latitude, f.Longitude = m.Latitude, m.Longitude
		}
		d.setTime(m.Time)
	case nmea.GSA:
		f.FixType = m.FixType
		f.PDOP, f.HDOP, f.VDOP = m.PDOP, m.HDOP, m.VDOP
	case nmea.VTG:
		f.Course = m.TrueTrack
		f.SpeedKnots, f.SpeedKPH = m.GroundSpeedKnots, m.GroundSpeedKPH
	default:
		return false
	}
	return true
}

func (d *Device) setTime(t nmea.Time) {
	if !t.Valid {
		return
	}
	y, mo, dd := 2000, 1, 1
	if d.date.Valid {
		y, mo, dd = 2000+d.date.YY, d.date.MM, d.date.DD
	}
	d.fix.Time = time.Date(y, time.Month(mo), dd, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC)
}

// Fix returns the accumulated state.
func (d *Device) Fix() Fix { return d.fix }

// HasFix reports whether the last position sentences carried a valid fix.
func (d *Device) HasFix() bool {
	return d.fix.Valid || (d.fix.Quality != "" && d.fix.Quality != nmea.Invalid)
}

// ParseField returns field index of the first sentence in rsp whose header
// contains command (e.g. "GNGGA" or "GGA"). Field 0 is the header itself.
// The checksum is not part of the last field.
func ParseField(rsp, command string, index int) (string, error) {
	i := strings.Index(rsp, command)
	if i < 0 {
		return "", ErrNoCommand
	}
	// Back up to the start of the header.
	if j := strings.LastIndexByte(rsp[:i], '$'); j >= 0 && !strings.ContainsAny(rsp[j:i], ",\r\n") {
		i = j + 1
	}
	s := rsp[i:]
	if j := strings.IndexAny(s, "*\r\n"); j >= 0 {
		s = s[:j]
	}
	f, ok := strx.Field(s, ',', index)
	if !ok {
		return "", ErrNoField
	}
	if f == "" {
		return "", ErrEmpty
	}
	return f, nil
}

// SendPMTK writes a $PMTK (or any proprietary) command, adding the leading
// '$', the checksum and CRLF. body is e.g. "PMTK220,1000".
func (d *Device) SendPMTK(body string) error {
	body = strings.TrimPrefix(body, "$")
	_, err := d.uart.Write([]byte(Frame(body)))
	return err
}

// Frame returns "$body*CS\r\n".
func Frame(body string) string {
	return "$" + body + "*" + nmea.Checksum(body) + "\r\n"
}
