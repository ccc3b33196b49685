// Package modem drives GSM clicks: 2G cellular modules controlled with
// 3GPP AT commands over UART, with a power key, a reset line and a status
// output.
package modem

import (
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"clickboards-go/atcmd"
	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/x/strx"
)

var (
	ErrInvalidParam = &errcode.E{C: errcode.InvalidParams, Op: "modem"}
	ErrPowerOn      = &errcode.E{C: errcode.Timeout, Op: "modem", Msg: "module did not power on"}
	ErrPowerOff     = &errcode.E{C: errcode.Timeout, Op: "modem", Msg: "module did not power off"}
)

// Timing of the power key and boot sequence.
const (
	PowerKeyPulse = 1 * time.Second
	ResetPulse    = 200 * time.Millisecond
	BootTime      = 3 * time.Second
	StatusTimeout = 5 * time.Second
	SMSTimeout    = 60 * time.Second
)

// ctrlZ terminates SMS text; esc aborts it.
const (
	ctrlZ = "\x1a"
	esc   = "\x1b"
)

// Config holds pin and port assignments.
type Config struct {
	UART string
	Baud uint32
	PWK  hal.PinID // power key, active high (drives the module's PWRKEY low)
	RST  hal.PinID // reset, active high
	STA  hal.PinID // status, high while the module is on
	AT   atcmd.Config
}

// DefaultConfig returns 9600 baud and the default AT engine settings.
func DefaultConfig() Config {
	return Config{Baud: 9600, AT: atcmd.DefaultConfig()}
}

// MapMikroBUS assigns the socket's UART; PWK sits on PWM, STA on AN.
func (c *Config) MapMikroBUS(s hal.Socket) {
	c.UART = s.UARTBus
	c.PWK = s.PWM
	c.RST = s.RST
	c.STA = s.AN
}

// Device is a GSM click instance.
type Device struct {
	at     *atcmd.Engine
	pwk    hal.Pin
	rst    hal.Pin
	sta    hal.Pin
	hasSTA bool
	clk    clock.Clock
}

// New binds the UART and control pins.
func New(p hal.Provider, cfg Config) (*Device, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	u, err := p.UART(cfg.UART, hal.UARTConfig{Baud: cfg.Baud}.WithDefaults())
	if err != nil {
		return nil, err
	}
	pwk, err := hal.OutputPin(p, cfg.PWK, false)
	if err != nil {
		return nil, err
	}
	rst, err := hal.OutputPin(p, cfg.RST, false)
	if err != nil {
		return nil, err
	}
	sta, err := hal.InputPin(p, cfg.STA, hal.PullNone, false)
	if err != nil {
		return nil, err
	}
	at := atcmd.New(u, cfg.AT)
	return &Device{
		at:     at,
		pwk:    pwk,
		rst:    rst,
		sta:    sta,
		hasSTA: cfg.STA != hal.NC,
		clk:    at.Config().Clock,
	}, nil
}

// AT exposes the command engine.
func (d *Device) AT() *atcmd.Engine { return d.at }

// On reports the STA line. Without a status pin it sends a bare AT.
func (d *Device) On() bool {
	if d.hasSTA {
		return d.sta.Get()
	}
	return d.at.CommandTimeout("AT", 300*time.Millisecond) == nil
}

// PowerOn pulses the power key unless the module is already on, then waits
// for it to come up.
func (d *Device) PowerOn() error {
	if d.On() {
		return nil
	}
	hal.Pulse(d.clk, d.pwk, true, PowerKeyPulse)
	if !d.waitStatus(true) {
		return ErrPowerOn
	}
	return nil
}

// PowerOff pulses the power key if the module is on and waits for it to go
// down.
func (d *Device) PowerOff() error {
	if !d.On() {
		return nil
	}
	hal.Pulse(d.clk, d.pwk, true, PowerKeyPulse)
	if !d.waitStatus(false) {
		return ErrPowerOff
	}
	return nil
}

func (d *Device) waitStatus(on bool) bool {
	deadline := d.clk.Now().Add(StatusTimeout)
	for {
		if d.On() == on {
			return true
		}
		if !d.clk.Now().Before(deadline) {
			return false
		}
		d.clk.Sleep(100 * time.Millisecond)
	}
}

// Reset pulses RST and waits for the module to boot.
func (d *Device) Reset() {
	hal.Pulse(d.clk, d.rst, true, ResetPulse)
	d.clk.Sleep(BootTime)
	d.at.Clear()
}

// Check sends a bare AT.
func (d *Device) Check() error { return d.at.Command("AT") }

// DefaultCfg turns echo off, enables numeric extended errors and selects
// text-mode SMS.
func (d *Device) DefaultCfg() error {
	for _, c := range []string{"AT", "ATE0", "AT+CMEE=1", "AT+CMGF=1"} {
		if err := d.at.Command(c); err != nil {
			return err
		}
	}
	return nil
}

// Command runs a raw command and returns its response lines, final result
// excluded.
func (d *Device) Command(cmd string) ([]string, error) {
	err := d.at.Command(cmd)
	lines := d.at.Lines()
	if n := len(lines); n > 0 && err == nil {
		lines = lines[:n-1]
	}
	return lines, err
}

// Signal is a +CSQ report.
type Signal struct {
	RSSI  int // 0..31, 99 unknown
	BER   int // 0..7, 99 unknown
	DBm   int // valid when Known
	Known bool
}

// SignalQuality reads +CSQ. RSSI code n maps to -113 + 2n dBm.
func (d *Device) SignalQuality() (Signal, error) {
	v, err := d.at.Query("AT+CSQ", "+CSQ:")
	if err != nil {
		return Signal{}, err
	}
	return parseCSQ(v)
}

func parseCSQ(v string) (Signal, error) {
	rs, ok1 := strx.Field(v, ',', 0)
	bs, ok2 := strx.Field(v, ',', 1)
	if !ok1 || !ok2 {
		return Signal{}, &errcode.E{C: errcode.Error, Op: "AT+CSQ", Msg: v}
	}
	rssi, err1 := strconv.Atoi(strings.TrimSpace(rs))
	ber, err2 := strconv.Atoi(strings.TrimSpace(bs))
	if err1 != nil || err2 != nil {
		return Signal{}, &errcode.E{C: errcode.Error, Op: "AT+CSQ", Msg: v}
	}
	s := Signal{RSSI: rssi, BER: ber}
	if rssi >= 0 && rssi <= 31 {
		s.Known = true
		s.DBm = -113 + 2*rssi
	}
	return s, nil
}

// RegStatus is the <stat> field of +CREG.
type RegStatus int

const (
	NotRegistered RegStatus = iota
	RegisteredHome
	Searching
	Denied
	Unknown
	RegisteredRoaming
)

// Registered reports home or roaming registration.
func (s RegStatus) Registered() bool {
	return s == RegisteredHome || s == RegisteredRoaming
}

// Registration reads the network registration state.
func (d *Device) Registration() (RegStatus, error) {
	v, err := d.at.Query("AT+CREG?", "+CREG:")
	if err != nil {
		return Unknown, err
	}
	f, ok := strx.Field(v, ',', 1)
	if !ok {
		// Unsolicited form carries only <stat>.
		f = v
	}
	n, err := strconv.Atoi(strings.TrimSpace(f))
	if err != nil {
		return Unknown, &errcode.E{C: errcode.Error, Op: "AT+CREG?", Msg: v}
	}
	return RegStatus(n), nil
}

// Operator returns the registered network name from +COPS.
func (d *Device) Operator() (string, error) {
	v, err := d.at.Query("AT+COPS?", "+COPS:")
	if err != nil {
		return "", err
	}
	f, ok := strx.Field(v, ',', 2)
	if !ok {
		return "", errcode.NotReady
	}
	return strings.Trim(f, `"`), nil
}

// SendSMS sends a text-mode SMS and returns the message reference.
func (d *Device) SendSMS(number, text string) (int, error) {
	if !validNumber(number) || len(text) > 160 || strings.ContainsAny(text, ctrlZ+esc) {
		return 0, ErrInvalidParam
	}
	if err := d.at.Send(`AT+CMGS="` + number + `"`); err != nil {
		return 0, err
	}
	if err := d.at.WaitFor(">", 5*time.Second); err != nil {
		_ = d.at.Write([]byte(esc))
		return 0, err
	}
	if err := d.at.Write([]byte(text + ctrlZ)); err != nil {
		return 0, err
	}
	if err := d.at.Wait(SMSTimeout); err != nil {
		return 0, err
	}
	for _, l := range d.at.Lines() {
		if rest, ok := strx.CutPrefixFold(l, "+CMGS:"); ok {
			ref, _ := strconv.Atoi(strings.TrimSpace(rest))
			return ref, nil
		}
	}
	return 0, nil
}

func validNumber(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if s == "" || len(s) > 20 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
