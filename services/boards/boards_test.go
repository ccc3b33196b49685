package boards

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"clickboards-go/config"
	"clickboards-go/drivers/gnss"
	"clickboards-go/errcode"
	"clickboards-go/hal/haltest"
)

const ok = "\r\nOK\r\n"

// rtcTarget is an MCP79410 register file whose OSCRUN bit follows ST.
func rtcTarget() *haltest.Target {
	tg := &haltest.Target{Mem: make([]byte, 0x60)}
	tg.OnWrite = func(reg int, v byte) {
		if reg == 0 {
			if v&0x80 != 0 {
				tg.Mem[3] |= 0x20
			} else {
				tg.Mem[3] &^= 0x20
			}
		}
	}
	return tg
}

func input(p *haltest.Provider, clk haltest.Clock, params map[string]any) BuildInput {
	return BuildInput{Name: "t", Provider: p, Socket: haltest.Socket, Params: params, Clock: clk}
}

func TestDriversRegistered(t *testing.T) {
	want := []string{"accel", "ambient", "eeprom", "gnss", "modem", "pwm", "rtc", "stepper", "temphum"}
	if diff := cmp.Diff(want, Drivers()); diff != "" {
		t.Fatalf("drivers (-want +got):\n%s", diff)
	}
	if _, err := Build("toaster", BuildInput{}); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration accepted")
		}
	}()
	Register("rtc", buildRTC)
}

func TestRTCSyncsFromHostClock(t *testing.T) {
	bus := haltest.NewRegI2C()
	bus.Attach(0x6F, rtcTarget())
	p := haltest.NewProvider().AddI2C("i2c", bus)
	clk := haltest.NewClock()
	at := time.Date(2024, 7, 14, 10, 20, 30, 0, time.UTC)
	clk.Set(at)

	task, err := Build("rtc", input(p, clk, map[string]any{"sync": true}))
	if err != nil {
		t.Fatal(err)
	}
	v, err := task(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"time": at}, v); diff != "" {
		t.Fatalf("reading (-want +got):\n%s", diff)
	}
}

func TestEEPROMParams(t *testing.T) {
	bus := haltest.NewRegI2C()
	tg := bus.Attach(0x50, &haltest.Target{Mem: make([]byte, 4096), AddrBytes: 2})
	copy(tg.Mem[0x100:], "hello")
	p := haltest.NewProvider().AddI2C("i2c", bus)

	task, err := Build("eeprom", input(p, haltest.NewClock(), map[string]any{
		"chip":        "24C32",
		"offset":      "256",
		"length":      5,
		"write_cycle": "10ms",
	}))
	if err != nil {
		t.Fatal(err)
	}
	v, err := task(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := string(v.(map[string]any)["data"].([]byte)); got != "hello" {
		t.Fatalf("data %q", got)
	}
}

func TestPWMCyclesLevels(t *testing.T) {
	bus := haltest.NewRegI2C()
	tg := bus.Attach(0x40, &haltest.Target{Mem: make([]byte, 0x100)})
	p := haltest.NewProvider().AddI2C("i2c", bus)

	task, err := Build("pwm", input(p, haltest.NewClock(), map[string]any{
		"channel":   1,
		"levels":    "1000,0",
		"frequency": 200,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if tg.Mem[0xFE] != 30 {
		t.Fatalf("prescale %d", tg.Mem[0xFE])
	}
	// Channel 1 ON_H is register 11, OFF_H register 13.
	for i, want := range []struct{ onH, offH byte }{{0x10, 0}, {0, 0x10}, {0x10, 0}} {
		v, err := task(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if tg.Mem[11] != want.onH || tg.Mem[13] != want.offH {
			t.Fatalf("tick %d: ON_H %#x OFF_H %#x (%v)", i, tg.Mem[11], tg.Mem[13], v)
		}
	}
}

func TestDecodeSplitsCommaLists(t *testing.T) {
	var got struct {
		Levels []int
		Names  []string
		Raw    []byte
		Pause  time.Duration
	}
	err := decode(map[string]any{
		"levels": " 1000, 0 ,500",
		"names":  "a,b",
		"raw":    "hi",
		"pause":  "250ms",
	}, &got)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1000, 0, 500}, got.Levels); diff != "" {
		t.Fatalf("levels (-want +got):\n%s", diff)
	}
	if !cmp.Equal([]string{"a", "b"}, got.Names) || string(got.Raw) != "hi" || got.Pause != 250*time.Millisecond {
		t.Fatalf("decoded %+v", got)
	}
	if err := decode(map[string]any{"levels": "1,x"}, &got); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("bad element: %v", err)
	}
}

func TestStepperTask(t *testing.T) {
	p := haltest.NewProvider()
	task, err := Build("stepper", input(p, haltest.NewClock(), map[string]any{
		"mode":          "half",
		"speed":         1000,
		"degrees":       36,
		"steps_per_rev": 20,
	}))
	if err != nil {
		t.Fatal(err)
	}
	for want := int64(4); want <= 8; want += 4 {
		v, err := task(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got := v.(map[string]any)["position"]; got != want {
			t.Fatalf("position %v want %d", got, want)
		}
	}
	if p.FakePin("AN").Get() || p.FakePin("PWM").Get() {
		t.Fatal("coils left energised")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := task(ctx); err != context.Canceled {
		t.Fatalf("got %v", err)
	}
}

func TestModemTask(t *testing.T) {
	u := &haltest.FakeUART{Respond: haltest.ATResponder(map[string]string{
		"AT": ok, "ATE0": ok, "AT+CMEE=1": ok, "AT+CMGF=1": ok,
		"AT+CSQ":   "\r\n+CSQ: 18,99\r\n" + ok,
		"AT+CREG?": "\r\n+CREG: 0,1\r\n" + ok,
	})}
	p := haltest.NewProvider().AddUART("uart", u)
	task, err := Build("modem", input(p, haltest.NewClock(), map[string]any{"baud": "115200"}))
	if err != nil {
		t.Fatal(err)
	}
	if p.UARTC["uart"].Baud != 115200 {
		t.Fatalf("baud %d", p.UARTC["uart"].Baud)
	}
	v, err := task(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"rssi": 18, "ber": 99, "dbm": -77, "registered": true}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("reading (-want +got):\n%s", diff)
	}
}

func TestGNSSTask(t *testing.T) {
	u := &haltest.FakeUART{}
	p := haltest.NewProvider().AddUART("uart", u)
	task, err := Build("gnss", input(p, haltest.NewClock(), nil))
	if err != nil {
		t.Fatal(err)
	}
	u.Feed("$GNGGA,092750.000,5321.6802,N,00630.3372,W,1,8,1.03,61.7,M,55.2,M,,*68\r\n")
	v, err := task(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fix := v.(gnss.Fix); fix.Satellites != 8 || fix.Altitude != 61.7 {
		t.Fatalf("fix %+v", fix)
	}
	u.Feed("$GNGGA,garbage*00\r\n")
	if _, err := task(context.Background()); err == nil {
		t.Fatal("bad sentence not reported")
	}
}

func TestInvalidParams(t *testing.T) {
	cases := []struct {
		driver string
		params map[string]any
	}{
		{"temphum", map[string]any{"colour": "red"}},
		{"accel", map[string]any{"range": 3}},
		{"accel", map[string]any{"rate": 60}},
		{"ambient", map[string]any{"gain": 3}},
		{"ambient", map[string]any{"integration": "100ms"}},
		{"pwm", map[string]any{"channel": 16}},
		{"pwm", map[string]any{"levels": []int{0, 1001}}},
		{"stepper", map[string]any{"mode": "micro"}},
		{"stepper", map[string]any{"steps_per_rev": 0}},
		{"eeprom", map[string]any{"chip": "24C99"}},
		{"eeprom", map[string]any{"offset": 1020, "length": 8}},
	}
	for _, c := range cases {
		_, err := Build(c.driver, input(haltest.NewProvider(), haltest.NewClock(), c.params))
		if errcode.Of(err) != errcode.InvalidParams {
			t.Errorf("%s %v: got %v", c.driver, c.params, err)
		}
	}
	in := input(haltest.NewProvider(), haltest.NewClock(), nil)
	in.Bus = "uart"
	if _, err := Build("accel", in); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("accel over uart: got %v", err)
	}
}

func TestJobs(t *testing.T) {
	bus := haltest.NewRegI2C()
	bus.Attach(0x6F, rtcTarget())
	p := haltest.NewProvider().AddI2C("/dev/i2c-1", bus)
	clk := haltest.NewClock()
	clk.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg, err := config.Parse([]byte(`
carrier: pi-click-shield
boards:
  - {name: clock, driver: rtc, socket: mikrobus1, interval: 1s}
  - {name: motor, driver: stepper, socket: mikrobus2, interval: 5s, params: {degrees: 0}}
  - {name: store, driver: eeprom, socket: mikrobus2, interval: 1m, params: {chip: 24C99}}
`))
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := Jobs(cfg, p, clk)
	errs := multierr.Errors(err)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), `board "store"`) {
		t.Fatalf("errors %v", errs)
	}
	if len(jobs) != 2 || jobs[0].Name != "clock" || jobs[1].Interval != 5*time.Second {
		t.Fatalf("jobs %+v", jobs)
	}
	if !p.FakePin("GPIO13").IsOutput() {
		t.Fatal("stepper IN1 not bound to mikrobus2 AN")
	}

	cfg.Boards[0].Driver = "toaster"
	if jobs, err := Jobs(cfg, p, clk); err == nil || jobs != nil {
		t.Fatal("invalid config built")
	}
}
