package rtc

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clickboards-go/hal/haltest"
)

func newDevice(t *testing.T) (*Device, *haltest.Target, *haltest.Provider) {
	t.Helper()
	bus := haltest.NewRegI2C()
	tg := bus.Attach(Address, &haltest.Target{Mem: make([]byte, 0x60)})
	// OSCRUN follows ST.
	tg.OnWrite = func(reg int, v byte) {
		if reg == regSec {
			if v&secST != 0 {
				tg.Mem[regWkDay] |= wkdOSCRun
			} else {
				tg.Mem[regWkDay] &^= wkdOSCRun
			}
		}
	}
	p := haltest.NewProvider().AddI2C("i2c", bus)
	cfg := DefaultConfig()
	cfg.MapMikroBUS(haltest.Socket)
	cfg.Clock = haltest.NewClock()
	d, err := New(p, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d, tg, p
}

func TestDefaultCfg(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.Mem[regHour] = hour12 | 0x11
	if err := d.DefaultCfg(); err != nil {
		t.Fatal(err)
	}
	if tg.Mem[regSec]&secST == 0 {
		t.Fatal("oscillator not started")
	}
	if tg.Mem[regWkDay]&wkdVBatEn == 0 {
		t.Fatal("battery backup not enabled")
	}
	if tg.Mem[regHour]&hour12 != 0 {
		t.Fatal("12-hour mode left on")
	}
	if ok, _ := d.OscillatorRunning(); !ok {
		t.Fatal("OSCRUN not reported")
	}
}

func TestStartTimesOut(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.OnWrite = nil
	if err := d.Start(); err != ErrOscillator {
		t.Fatalf("got %v", err)
	}
}

func TestSecondsRoundTripAllValues(t *testing.T) {
	d, tg, _ := newDevice(t)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	for s := 0; s <= 255; s++ {
		if err := d.SetTimeSeconds(uint8(s)); err != nil {
			t.Fatal(err)
		}
		got, err := d.GetTimeSeconds()
		if err != nil {
			t.Fatal(err)
		}
		if got != uint8(s%60) {
			t.Fatalf("s=%d: got %d want %d", s, got, s%60)
		}
		if tg.Mem[regSec]&secST == 0 {
			t.Fatalf("s=%d: ST cleared", s)
		}
	}
}

func TestTimeAndDate(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.Mem[regWkDay] = wkdVBatEn
	want := Time{Hours: 23, Minutes: 59, Seconds: 58}
	if err := d.SetTime(want); err != nil {
		t.Fatal(err)
	}
	if tg.Mem[regHour] != 0x23 || tg.Mem[regMin] != 0x59 {
		t.Fatalf("BCD %#x:%#x", tg.Mem[regHour], tg.Mem[regMin])
	}
	got, err := d.GetTime()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("time (-want +got):\n%s", diff)
	}

	date := Date{Weekday: 3, Day: 29, Month: 2, Year: 2028}
	if err := d.SetDate(date); err != nil {
		t.Fatal(err)
	}
	if tg.Mem[regWkDay]&wkdVBatEn == 0 {
		t.Fatal("SetDate dropped VBATEN")
	}
	gd, err := d.GetDate()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(date, gd); diff != "" {
		t.Fatalf("date (-want +got):\n%s", diff)
	}

	if err := d.SetTime(Time{Hours: 24}); err != ErrInvalidParam {
		t.Fatal("hour 24 accepted")
	}
	if err := d.SetDate(Date{Weekday: 1, Day: 1, Month: 13, Year: 2024}); err != ErrInvalidParam {
		t.Fatal("month 13 accepted")
	}
}

func TestDateTime(t *testing.T) {
	d, tg, _ := newDevice(t)
	ts := time.Date(2024, time.July, 14, 9, 5, 30, 0, time.UTC)
	if err := d.SetDateTime(ts); err != nil {
		t.Fatal(err)
	}
	if tg.Mem[regSec] != secST|0x30 {
		t.Fatalf("RTCSEC=%#x", tg.Mem[regSec])
	}
	if tg.Mem[regWkDay]&wkdMask != 1 { // Sunday
		t.Fatalf("weekday=%d", tg.Mem[regWkDay]&wkdMask)
	}
	got, err := d.DateTime()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ts) {
		t.Fatalf("got %v want %v", got, ts)
	}
	if err := d.SetDateTime(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)); err != ErrInvalidParam {
		t.Fatal("1999 accepted")
	}
}

func TestAlarm(t *testing.T) {
	d, tg, p := newDevice(t)
	at := time.Date(2024, time.January, 2, 6, 30, 0, 0, time.UTC)
	if err := d.SetAlarm(MatchMinutes, at); err != nil {
		t.Fatal(err)
	}
	if tg.Mem[regControl]&ctrlALM0En == 0 {
		t.Fatal("alarm not enabled")
	}
	if tg.Mem[regAlm0Sec+1] != 0x30 || tg.Mem[regAlm0WkDay]&almMaskBits != byte(MatchMinutes)<<4 {
		t.Fatalf("alarm regs % x", tg.Mem[regAlm0Sec:regAlm0Sec+6])
	}

	mfp := p.FakePin("INT")
	mfp.Drive(true)
	if d.AlarmAsserted() {
		t.Fatal("idle MFP read as asserted")
	}
	tg.Mem[regAlm0WkDay] |= almIF
	mfp.Drive(false)
	if fired, _ := d.AlarmTriggered(); !fired || !d.AlarmAsserted() {
		t.Fatal("alarm not reported")
	}
	if err := d.ClearAlarm(); err != nil {
		t.Fatal(err)
	}
	if fired, _ := d.AlarmTriggered(); fired {
		t.Fatal("ALM0IF not cleared")
	}
	if err := d.SetAlarm(AlarmMatch(5), at); err != ErrInvalidParam {
		t.Fatal("mask 5 accepted")
	}
}

func TestSRAM(t *testing.T) {
	d, tg, _ := newDevice(t)
	data := []byte("battery backed scratch")
	if err := d.WriteSRAM(10, data); err != nil {
		t.Fatal(err)
	}
	if string(tg.Mem[sramStart+10:sramStart+10+len(data)]) != string(data) {
		t.Fatal("SRAM contents")
	}
	buf := make([]byte, len(data))
	if err := d.ReadSRAM(10, buf); err != nil || string(buf) != string(data) {
		t.Fatalf("read %q %v", buf, err)
	}
	if err := d.WriteSRAM(60, data); err != ErrInvalidParam {
		t.Fatal("overflowing write accepted")
	}
}

func TestDisableAlarmKeepsOtherControlBits(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.Mem[regControl] = ctrlALM1En
	if err := d.SetAlarm(MatchAll, time.Date(2030, time.May, 6, 7, 8, 9, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if err := d.DisableAlarm(); err != nil {
		t.Fatal(err)
	}
	if got := tg.Mem[regControl]; got != ctrlALM1En {
		t.Fatalf("CONTROL=%#x", got)
	}
}

func TestSetOutput(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.Mem[regControl] = ctrlSQWEn
	for _, c := range []struct {
		high bool
		want byte
	}{{true, ctrlOut | ctrlSQWEn}, {false, ctrlSQWEn}} {
		if err := d.SetOutput(c.high); err != nil {
			t.Fatal(err)
		}
		if got := tg.Mem[regControl]; got != c.want {
			t.Errorf("SetOutput(%v): CONTROL=%#x want %#x", c.high, got, c.want)
		}
	}
}

func TestPowerFailedClearsFlag(t *testing.T) {
	d, tg, _ := newDevice(t)
	tg.Mem[regWkDay] = wkdPwrFail | wkdVBatEn | 3
	failed, err := d.PowerFailed()
	if err != nil || !failed {
		t.Fatalf("failed=%v err=%v", failed, err)
	}
	if got := tg.Mem[regWkDay]; got != wkdVBatEn|3 {
		t.Fatalf("WKDAY=%#x", got)
	}
	if failed, _ := d.PowerFailed(); failed {
		t.Fatal("flag reported twice")
	}
}

func TestSetTrim(t *testing.T) {
	d, tg, _ := newDevice(t)
	cases := []struct {
		in   int8
		want byte
	}{
		{0, 0x00},
		{5, 0x85},
		{-5, 0x05},
		{127, 0xFF},
		{-127, 0x7F},
	}
	for _, c := range cases {
		if err := d.SetTrim(c.in); err != nil {
			t.Fatal(err)
		}
		if got := tg.Mem[regOscTrim]; got != c.want {
			t.Errorf("SetTrim(%d): OSCTRIM=%#x want %#x", c.in, got, c.want)
		}
	}
	if err := d.SetTrim(-128); err != ErrInvalidParam {
		t.Fatalf("SetTrim(-128) = %v", err)
	}
	if got := tg.Mem[regOscTrim]; got != 0x7F {
		t.Fatalf("rejected trim touched the register: %#x", got)
	}
}

func TestLeapYear(t *testing.T) {
	d, tg, _ := newDevice(t)
	for _, c := range []struct {
		month byte
		want  bool
	}{{0x02, false}, {monthLPYR | 0x02, true}} {
		tg.Mem[regMonth] = c.month
		if got, err := d.LeapYear(); err != nil || got != c.want {
			t.Errorf("month reg %#x: leap=%v err=%v", c.month, got, err)
		}
	}
}
