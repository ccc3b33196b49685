// Package boards turns configured Click boards into sampler jobs.
//
// Each driver registers a Builder under its config name. A builder maps the
// socket, decodes the board's free-form params over the driver defaults,
// brings the chip up with DefaultCfg and returns the task the sampler runs
// on every tick.
package boards

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"clickboards-go/config"
	"clickboards-go/errcode"
	"clickboards-go/hal"
	"clickboards-go/services/sampler"
)

// BuildInput is what a builder gets for one board.
type BuildInput struct {
	Name     string
	Provider hal.Provider
	Socket   hal.Socket
	// Bus is "i2c", "spi" or empty for the driver default.
	Bus    string
	Params map[string]any
	Clock  clock.Clock
}

// Builder constructs and initialises a driver and returns its task.
type Builder func(in BuildInput) (sampler.Task, error)

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// Register installs a builder. It panics on an empty or duplicate name.
func Register(driver string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if driver == "" {
		panic("boards: empty driver name")
	}
	if _, exists := builders[driver]; exists {
		panic(fmt.Sprintf("boards: builder already registered for %q", driver))
	}
	builders[driver] = b
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build runs the builder registered for driver.
func Build(driver string, in BuildInput) (sampler.Task, error) {
	muBuilders.RLock()
	b, ok := builders[driver]
	muBuilders.RUnlock()
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "boards", Msg: "unknown driver " + driver}
	}
	if in.Clock == nil {
		in.Clock = clock.New()
	}
	return b(in)
}

// Jobs validates cfg and builds one sampler job per board. Every board is
// attempted; failures are combined.
func Jobs(cfg *config.Config, p hal.Provider, clk clock.Clock) ([]sampler.Job, error) {
	if err := cfg.Validate(Drivers()); err != nil {
		return nil, err
	}
	carrier, err := hal.Carrier(cfg.Carrier)
	if err != nil {
		return nil, err
	}
	var (
		jobs []sampler.Job
		errs error
	)
	for _, b := range cfg.Boards {
		sock, _ := carrier.Socket(b.Socket)
		task, err := Build(b.Driver, BuildInput{
			Name:     b.Name,
			Provider: p,
			Socket:   sock,
			Bus:      b.Bus,
			Params:   b.Params,
			Clock:    clk,
		})
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "board %q (%s)", b.Name, b.Driver))
			continue
		}
		jobs = append(jobs, sampler.Job{Name: b.Name, Interval: b.Interval, Task: task})
	}
	return jobs, errs
}

// decode overlays params onto out. Keys match field names ignoring case and
// underscores; durations may be given as strings ("250ms"); unknown keys are
// errors.
func decode(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			splitList(","),
		),
		MatchName: func(key, field string) bool {
			return strings.EqualFold(strings.ReplaceAll(key, "_", ""), field)
		},
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "boards", Msg: "params", Err: err}
	}
	return nil
}

// splitList turns "a,b" into a slice of any element type; mapstructure's
// own string-to-slice hook only targets []string.
func splitList(sep string) mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() == reflect.Uint8 {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "boards", Msg: msg}
}
