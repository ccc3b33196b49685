package modem

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/hal/haltest"
)

const ok = "\r\nOK\r\n"

func newDevice(t *testing.T, table map[string]string) (*Device, *haltest.FakeUART, *haltest.Provider, haltest.Clock) {
	t.Helper()
	u := &haltest.FakeUART{Respond: haltest.ATResponder(table)}
	p := haltest.NewProvider().AddUART("uart", u)
	clk := haltest.NewClock()
	cfg := DefaultConfig()
	cfg.MapMikroBUS(haltest.Socket)
	cfg.AT.Clock = clk
	d, err := New(p, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d, u, p, clk
}

func TestDefaultCfg(t *testing.T) {
	d, u, _, _ := newDevice(t, map[string]string{
		"AT": ok, "ATE0": ok, "AT+CMEE=1": ok, "AT+CMGF=1": ok,
	})
	if err := d.DefaultCfg(); err != nil {
		t.Fatal(err)
	}
	want := []string{"AT\r", "ATE0\r", "AT+CMEE=1\r", "AT+CMGF=1\r"}
	if diff := cmp.Diff(want, u.Writes()); diff != "" {
		t.Fatalf("writes (-want +got):\n%s", diff)
	}
}

func TestCmdErrorCode(t *testing.T) {
	d, _, _, _ := newDevice(t, map[string]string{
		"AT": ok, "ATE0": ok, "AT+CMEE=1": ok, "AT+CMGF=1": "\r\n+CME ERROR: 10\r\n",
	})
	err := d.DefaultCfg()
	if errcode.Of(err) != errcode.CmdError || errcode.Of(err).Int() != -3 {
		t.Fatalf("got %v", err)
	}
}

func TestQueries(t *testing.T) {
	d, _, _, _ := newDevice(t, map[string]string{
		"AT+CSQ":   "\r\n+CSQ: 18,99\r\n" + ok,
		"AT+CREG?": "\r\n+CREG: 0,5\r\n" + ok,
		"AT+COPS?": "\r\n+COPS: 0,0,\"Vodafone UK\"\r\n" + ok,
		"ATI":      "\r\nSIM800 R14.18\r\n" + ok,
	})
	s, err := d.SignalQuality()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Signal{RSSI: 18, BER: 99, DBm: -77, Known: true}, s); diff != "" {
		t.Fatalf("signal (-want +got):\n%s", diff)
	}
	reg, err := d.Registration()
	if err != nil || reg != RegisteredRoaming || !reg.Registered() {
		t.Fatalf("registration %v %v", reg, err)
	}
	op, err := d.Operator()
	if err != nil || op != "Vodafone UK" {
		t.Fatalf("operator %q %v", op, err)
	}
	lines, err := d.Command("ATI")
	if err != nil || !cmp.Equal(lines, []string{"SIM800 R14.18"}) {
		t.Fatalf("ATI %q %v", lines, err)
	}
}

func TestParseCSQUnknown(t *testing.T) {
	s, err := parseCSQ("99,99")
	if err != nil || s.Known {
		t.Fatalf("%+v %v", s, err)
	}
	if _, err := parseCSQ("garbage"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestSendSMS(t *testing.T) {
	d, u, _, _ := newDevice(t, map[string]string{
		`AT+CMGS="+447700900123"`: "\r\n> ",
		"hello\x1a":               "\r\n+CMGS: 42\r\n" + ok,
	})
	ref, err := d.SendSMS("+447700900123", "hello")
	if err != nil || ref != 42 {
		t.Fatalf("ref %d err %v", ref, err)
	}
	if got := u.Written(); got != "AT+CMGS=\"+447700900123\"\rhello\x1a" {
		t.Fatalf("wrote %q", got)
	}
	if _, err := d.SendSMS("12a", "x"); err != ErrInvalidParam {
		t.Fatal("bad number accepted")
	}
	if _, err := d.SendSMS("123", "a\x1ab"); err != ErrInvalidParam {
		t.Fatal("ctrl-z in text accepted")
	}
}

func TestPowerOnWithStatusPin(t *testing.T) {
	d, _, p, clk := newDevice(t, nil)
	start := clk.Now()
	if err := d.PowerOn(); err != ErrPowerOn {
		t.Fatalf("got %v", err)
	}
	if got := clk.Now().Sub(start); got < PowerKeyPulse+StatusTimeout {
		t.Fatalf("gave up after %v", got)
	}
	pwk := p.FakePin("PWM")
	if !cmp.Equal(pwk.History(), []bool{true, false}) {
		t.Fatalf("PWK history %v", pwk.History())
	}
	p.FakePin("AN").Drive(true)
	if err := d.PowerOn(); err != nil {
		t.Fatal(err)
	}
	if len(pwk.History()) != 2 {
		t.Fatal("pulsed an already running module")
	}
}

func TestPowerOnPollsATWithoutStatusPin(t *testing.T) {
	calls := 0
	u := &haltest.FakeUART{Respond: func(w string) string {
		if w != "AT\r" {
			return ""
		}
		calls++
		if calls <= 2 {
			return ""
		}
		return ok
	}}
	p := haltest.NewProvider().AddUART("uart", u)
	cfg := DefaultConfig()
	cfg.MapMikroBUS(haltest.Socket)
	cfg.STA = hal.NC
	cfg.AT.Clock = haltest.NewClock()
	d, err := New(p, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.PowerOn(); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(p.FakePin("PWM").History(), []bool{true, false}) {
		t.Fatal("power key not pulsed")
	}
}
