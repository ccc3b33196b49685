package boards

import (
	"context"

	"clickboards-go/drivers/stepper"
	"clickboards-go/services/sampler"
)

func init() {
	Register("stepper", buildStepper)
}

var stepModes = map[string]stepper.Mode{"wave": stepper.Wave, "full": stepper.Full, "half": stepper.Half}

// stepper params: mode, speed (steps/s), degrees turned per tick,
// steps_per_rev, release (de-energise between ticks).
func buildStepper(in BuildInput) (sampler.Task, error) {
	p := struct {
		Mode        string
		Speed       float64
		Degrees     float64
		StepsPerRev int
		Release     bool
	}{Mode: "full", Speed: 100, Degrees: 90, StepsPerRev: 200, Release: true}
	if err := decode(in.Params, &p); err != nil {
		return nil, err
	}
	mode, ok := stepModes[p.Mode]
	if !ok {
		return nil, invalid("stepper mode must be wave, full or half")
	}
	if p.StepsPerRev <= 0 {
		return nil, invalid("stepper steps_per_rev must be positive")
	}
	cfg := stepper.DefaultConfig()
	cfg.MapMikroBUS(in.Socket)
	cfg.Mode, cfg.Speed, cfg.Clock = mode, p.Speed, in.Clock
	d, err := stepper.New(in.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.DefaultCfg(); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.Rotate(p.Degrees, p.StepsPerRev); err != nil {
			return nil, err
		}
		if p.Release {
			d.Release()
		}
		return map[string]any{"position": d.Position()}, nil
	}, nil
}
