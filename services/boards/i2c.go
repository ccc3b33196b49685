package boards

import (
	"context"
	"time"

	"clickboards-go/drivers/accel"
	"clickboards-go/drivers/ambient"
	"clickboards-go/drivers/eeprom"
	"clickboards-go/drivers/pwm"
	"clickboards-go/drivers/rtc"
	"clickboards-go/drivers/temphum"
	"clickboards-go/services/sampler"
)

func init() {
	Register("accel", buildAccel)
	Register("ambient", buildAmbient)
	Register("rtc", buildRTC)
	Register("eeprom", buildEEPROM)
	Register("pwm", buildPWM)
	Register("temphum", buildTempHum)
}

var fullScales = map[int]accel.FullScale{2: accel.FS2G, 4: accel.FS4G, 8: accel.FS8G, 16: accel.FS16G}

var dataRates = map[int]accel.DataRate{
	1: accel.ODR1Hz, 10: accel.ODR10Hz, 25: accel.ODR25Hz, 50: accel.ODR50Hz,
	100: accel.ODR100Hz, 200: accel.ODR200Hz, 400: accel.ODR400Hz,
}

// accel params: range (g), rate (Hz).
func buildAccel(in BuildInput) (sampler.Task, error) {
	p := struct {
		Range int
		Rate  int
	}{Range: 2, Rate: 100}
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	fs, ok := fullScales[p.Range]
	if !ok {
		return nil, invalid("accel range must be 2, 4, 8 or 16")
	}
	odr, ok := dataRates[p.Rate]
	if !ok {
		return nil, invalid("accel rate must be 1, 10, 25, 50, 100, 200 or 400")
	}
	cfg := accel.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	cfg.FSR, cfg.ODR, cfg.Clock = fs, odr, in.Clock
	switch in.Bus {
	case "", "i2c":
		cfg.Driver = accel.DriverI2C
	case "spi":
		cfg.Driver = accel.DriverSPI
	default:
		return nil, invalid("accel bus must be i2c or spi")
	}
	d, err := accel.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) {
		a, err := d.ReadAxes()
		if err != nil {
			return nil, err
		}
		return map[string]any{"x": a.X, "y": a.Y, "z": a.Z, "unit": "g"}, nil
	}, nil
}

var gains = map[int]ambient.Gain{1: ambient.Gain1X, 32: ambient.Gain32X, 256: ambient.Gain256X}

// ambient params: gain (1, 32, 256), integration (160ms..5120ms), auto.
func buildAmbient(in BuildInput) (sampler.Task, error) {
	p := struct {
		Gain        int
		Integration time.Duration
		Auto        bool
	}{Gain: 1, Integration: 160 * time.Millisecond}
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	g, ok := gains[p.Gain]
	if !ok {
		return nil, invalid("ambient gain must be 1, 32 or 256")
	}
	it, ok := integrationFor(p.Integration)
	if !ok {
		return nil, invalid("ambient integration must be 160ms doubled up to 5120ms")
	}
	cfg := ambient.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	cfg.Gain, cfg.Integration, cfg.Clock = g, it, in.Clock
	d, err := ambient.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	read := d.ReadLux
	if p.Auto {
		read = d.ReadLuxAuto
	}
	return func(context.Context) (any, error) {
		lux, err := read()
		if err != nil {
			return nil, err
		}
		return map[string]any{"lux": lux, "gain": int(d.Gain().Divisor())}, nil
	}, nil
}

func integrationFor(d time.Duration) (ambient.Integration, bool) {
	for it := ambient.Time160ms; it <= ambient.Time5120ms; it++ {
		if it.Duration() == d {
			return it, true
		}
	}
	return 0, false
}

// rtc params: sync (set the chip from the host clock at start).
func buildRTC(in BuildInput) (sampler.Task, error) {
	p := struct {
		rtc.Config `mapstructure:",squash"`
		Sync       bool
	}{Config: rtc.DefaultConfig()}
	p.MapMikroBUS(in.Socket)
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	p.Clock = in.Clock
	d, err := rtc.New(in.Provider, p.Config)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	if p.Sync {
		if err := d.SetDateTime(in.Clock.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return func(context.Context) (any, error) {
		t, err := d.DateTime()
		if err != nil {
			return nil, err
		}
		return map[string]any{"time": t}, nil
	}, nil
}

var parts = map[string]eeprom.Part{
	"24C02": eeprom.Part24C02, "24C04": eeprom.Part24C04, "24C08": eeprom.Part24C08,
	"24C16": eeprom.Part24C16, "24C32": eeprom.Part24C32, "24C64": eeprom.Part24C64,
	"24C256": eeprom.Part24C256,
}

// eeprom params: chip ("24C08"), offset and length of the window read on
// every tick, plus any eeprom.Config field.
func buildEEPROM(in BuildInput) (sampler.Task, error) {
	p := struct {
		eeprom.Config `mapstructure:",squash"`
		Chip          string
		Offset        int
		Length        int
	}{Config: eeprom.DefaultConfig(), Length: 16}
	p.MapMikroBUS(in.Socket)
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	if p.Chip != "" {
		part, ok := parts[p.Chip]
		if !ok {
			return nil, invalid("unknown eeprom chip " + p.Chip)
		}
		p.Part = part
	}
	if p.Length <= 0 || p.Offset < 0 || p.Offset+p.Length > p.Size {
		return nil, invalid("eeprom window outside the part")
	}
	p.Clock = in.Clock
	d, err := eeprom.New(in.Provider, p.Config)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) {
		buf := make([]byte, p.Length)
		if err := d.Read(p.Offset, buf); err != nil {
			return nil, err
		}
		return map[string]any{"offset": p.Offset, "data": buf}, nil
	}, nil
}

// pwm params: channel, levels (permille, cycled one per tick), fade and
// steps for the transition, plus frequency and invert.
func buildPWM(in BuildInput) (sampler.Task, error) {
	p := struct {
		pwm.Config `mapstructure:",squash"`
		Channel    int
		Levels     []int
		Fade       time.Duration
		Steps      int
	}{Config: pwm.DefaultConfig(), Levels: []int{0, 500, 1000}, Steps: 1}
	p.MapMikroBUS(in.Socket)
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	if p.Channel < 0 || p.Channel >= pwm.Channels || len(p.Levels) == 0 {
		return nil, invalid("pwm needs a channel 0..15 and at least one level")
	}
	for _, l := range p.Levels {
		if l < 0 || l > 1000 {
			return nil, invalid("pwm levels are 0..1000 permille")
		}
	}
	p.Clock = in.Clock
	d, err := pwm.New(in.Provider, p.Config)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	next := 0
	return func(context.Context) (any, error) {
		lvl := p.Levels[next]
		if err := d.Fade(p.Channel, lvl, p.Fade, p.Steps); err != nil {
			return nil, err
		}
		next = (next + 1) % len(p.Levels)
		return map[string]any{"channel": p.Channel, "duty_permille": lvl}, nil
	}, nil
}

// temphum params: any temphum.Config field.
func buildTempHum(in BuildInput) (sampler.Task, error) {
	cfg := temphum.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	if err := decode(in.Params, &cfg); err != nil {
		return nil, err
	}
	cfg.Clock = in.Clock
	d, err := temphum.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) {
		s, err := d.Read()
		if err != nil {
			return nil, err
		}
		return map[string]any{"deci_c": s.DeciCelsius(), "deci_percent": s.DeciRelHumidity()}, nil
	}, nil
}
