package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"clickboards-go/bus"
	"clickboards-go/errcode"
	"clickboards-go/services/heartbeat"
)

var drivers = []string{"accel", "ambient", "rtc", "eeprom", "gnss", "pwm", "stepper", "modem", "temphum"}

const sample = `
boards:
  - name: light
    driver: ambient
    socket: mikrobus1
    interval: 250ms
    params:
      gain: 32
  - name: tilt
    driver: accel
    socket: mikrobus2
    bus: spi
    interval: 1s
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Carrier: DefaultCarrier,
		Boards: []Board{
			{Name: "light", Driver: "ambient", Socket: "mikrobus1", Interval: 250 * time.Millisecond, Params: map[string]any{"gain": 32}},
			{Name: "tilt", Driver: "accel", Socket: "mikrobus2", Bus: "spi", Interval: time.Second},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(drivers); err != nil {
		t.Fatal(err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("boards:\n  - name: x\n    colour: red\n")); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{Carrier: "pi-click-shield", Boards: []Board{
		{Name: "a", Driver: "rtc", Socket: "mikrobus1", Interval: time.Second},
		{Name: "a", Driver: "rtc", Socket: "mikrobus2", Interval: time.Second},
		{Name: "b", Driver: "toaster", Socket: "mikrobus1", Interval: time.Second},
		{Name: "c", Driver: "rtc", Socket: "mikrobus9", Interval: time.Second},
		{Name: "d", Driver: "rtc", Socket: "mikrobus1"},
		{Name: "e", Driver: "accel", Socket: "mikrobus1", Bus: "uart", Interval: time.Second},
	}}
	errs := multierr.Errors(cfg.Validate(drivers))
	if len(errs) != 5 {
		t.Fatalf("got %d errors: %v", len(errs), errs)
	}
	for i, frag := range []string{"duplicate", "toaster", "mikrobus9", "interval", "bus"} {
		if !strings.Contains(errs[i].Error(), frag) {
			t.Errorf("error %d = %q, want mention of %q", i, errs[i], frag)
		}
	}
}

func TestValidateUnknownCarrier(t *testing.T) {
	cfg := &Config{Carrier: "arduino-uno-shield"}
	if errcode.Of(cfg.Validate(drivers)) != errcode.Unsupported {
		t.Fatal("unknown carrier accepted")
	}
}

func TestReadExpandsEnvironment(t *testing.T) {
	t.Setenv("GSM_BAUD", "115200")
	path := filepath.Join(t.TempDir(), "boards.yaml")
	doc := "carrier: pico-click-shield\nboards:\n  - name: gsm\n    driver: modem\n    socket: mikrobus2\n    interval: 1m\n    params:\n      baud: ${GSM_BAUD}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Boards[0].Params["baud"]; got != 115200 {
		t.Fatalf("baud = %#v", got)
	}
	if cfg.Carrier != "pico-click-shield" || cfg.Boards[0].Interval != time.Minute {
		t.Fatalf("%+v", cfg)
	}
	if _, err := Read(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestFromReader(t *testing.T) {
	t.Setenv("CLIMATE_SOCKET", "mikrobus2")
	cfg, err := FromReader(strings.NewReader("boards:\n  - name: climate\n    driver: temphum\n    socket: ${CLIMATE_SOCKET}\n    interval: 5s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Boards[0].Socket != "mikrobus2" {
		t.Fatalf("socket %q", cfg.Boards[0].Socket)
	}
}

func TestDefaultsValidate(t *testing.T) {
	for carrier := range embeddedConfigs {
		cfg, err := Default(carrier)
		if err != nil {
			t.Fatalf("%s: %v", carrier, err)
		}
		if cfg.Carrier != carrier {
			t.Errorf("%s: carrier %q", carrier, cfg.Carrier)
		}
		if err := cfg.Validate(drivers); err != nil {
			t.Errorf("%s: %v", carrier, err)
		}
	}
	if _, err := Default("nope"); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("got %v", err)
	}
}

func TestPublishRetainedPerBoard(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	b := bus.NewBus(8)
	conn := b.NewConnection("config")
	cfg.Publish(conn)

	sub := conn.Subscribe(bus.T(TopicConfig, "+"))
	got := map[string]Board{}
	for len(got) < 2 {
		select {
		case m := <-sub.Channel():
			if !m.Retained {
				t.Fatalf("%v not retained", m.Topic)
			}
			got[m.Topic[1].(string)] = m.Payload.(Board)
		case <-time.After(time.Second):
			t.Fatalf("only %d configs", len(got))
		}
	}
	if diff := cmp.Diff(cfg.Boards[1], got["tilt"]); diff != "" {
		t.Fatalf("tilt (-want +got):\n%s", diff)
	}
}

func TestHeartbeatSetting(t *testing.T) {
	cfg, err := Parse([]byte("heartbeat: 30s\nboards:\n  - name: heartbeat\n    driver: rtc\n    socket: mikrobus1\n    interval: 1s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Heartbeat != 30*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Heartbeat)
	}
	if err := cfg.Validate(drivers); err == nil || !strings.Contains(err.Error(), "reserved") {
		t.Fatalf("reserved name accepted: %v", err)
	}

	cfg.Boards = nil
	b := bus.NewBus(4)
	conn := b.NewConnection("config")
	cfg.Publish(conn)
	sub := conn.Subscribe(heartbeat.TopicConfig)
	select {
	case m := <-sub.Channel():
		if got := m.Payload.(heartbeat.Config); got.Interval != 30*time.Second {
			t.Fatalf("published %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat config not retained")
	}
}

func TestWriteThenRead(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Write(path); err != nil {
		t.Fatal(err)
	}
	back, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
