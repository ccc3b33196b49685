package boards

import (
	"context"

	"clickboards-go/drivers/gnss"
	"clickboards-go/drivers/modem"
	"clickboards-go/services/sampler"
)

func init() {
	Register("gnss", buildGNSS)
	Register("modem", buildModem)
}

// gnss params: any gnss.Config field (baud, buffer_size).
func buildGNSS(in BuildInput) (sampler.Task, error) {
	cfg := gnss.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	if err := decode(in.Params, &cfg); err != nil {
		return nil, err
	}
	cfg.Clock = in.Clock
	d, err := gnss.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) {
		n, err := d.Update()
		if n == 0 && err != nil {
			return nil, err
		}
		return d.Fix(), nil
	}, nil
}

// modem params: baud, power_on (pulse the power key at start).
func buildModem(in BuildInput) (sampler.Task, error) {
	p := struct {
		Baud    uint32
		PowerOn bool
	}{Baud: 9600}
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	cfg := modem.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	cfg.Baud = p.Baud
	cfg.AT.Clock = in.Clock
	d, err := modem.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if p.PowerOn {
		if err := d.PowerOn(); err != nil {
			return nil, err
		}
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(context.Context) (any, error) {
		sig, err := d.SignalQuality()
		if err != nil {
			return nil, err
		}
		reg, err := d.Registration()
		if err != nil {
			return nil, err
		}
		out := map[string]any{"rssi": sig.RSSI, "ber": sig.BER, "registered": reg.Registered()}
		if sig.Known {
			out["dbm"] = sig.DBm
		}
		return out, nil
	}, nil
}
