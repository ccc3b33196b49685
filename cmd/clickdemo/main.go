// Command clickdemo drives Click boards from a Linux host.
//
//	clickdemo run --config boards.yaml
//	clickdemo temphum --socket mikrobus1 --count 3
//	clickdemo pwm --param channel=0 --param levels=0,500,1000
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clickboards-go/bus"
	"clickboards-go/config"
	"clickboards-go/hal"
	"clickboards-go/platform"
	"clickboards-go/services/boards"
	"clickboards-go/services/heartbeat"
	"clickboards-go/services/sampler"
)

const (
	flagDebug    = "debug"
	flagCarrier  = "carrier"
	flagConfig   = "config"
	flagSocket   = "socket"
	flagBus      = "bus"
	flagCount    = "count"
	flagInterval = "interval"
	flagParam    = "param"
)

func main() {
	var logger *zap.Logger

	app := &cli.App{
		Name:  "clickdemo",
		Usage: "read and drive MikroBUS Click boards",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: flagDebug, Usage: "enable debug logging"},
			&cli.StringFlag{
				Name:  flagCarrier,
				Value: config.DefaultCarrier,
				Usage: "socket layout used by single-board commands",
			},
		},
		Before: func(c *cli.Context) error {
			zc := zap.NewDevelopmentConfig()
			if !c.Bool(flagDebug) {
				zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
			}
			var err error
			logger, err = zc.Build()
			return err
		},
		After: func(*cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "sample every configured board until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load boards from `FILE` (default: built-in list for --carrier)",
					},
				},
				Action: func(c *cli.Context) error { return run(c, logger) },
			},
			{
				Name:  "sockets",
				Usage: "list the sockets of --carrier",
				Action: func(c *cli.Context) error {
					carrier, err := hal.Carrier(c.String(flagCarrier))
					if err != nil {
						return err
					}
					for _, name := range carrier.Names() {
						s := carrier[name]
						logger.Info(name,
							zap.String("i2c", s.I2CBus), zap.String("spi", s.SPIBus), zap.String("uart", s.UARTBus),
							zap.String("an", string(s.AN)), zap.String("rst", string(s.RST)),
							zap.String("cs", string(s.CS)), zap.String("pwm", string(s.PWM)), zap.String("int", string(s.INT)))
					}
					return nil
				},
			},
		},
	}
	for _, d := range boards.Drivers() {
		app.Commands = append(app.Commands, driverCommand(d, &logger))
	}

	if err := app.Run(os.Args); err != nil {
		if logger != nil {
			logger.Fatal("clickdemo", zap.Error(err))
		}
		os.Exit(1)
	}
}

func driverCommand(driver string, logger **zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  driver,
		Usage: "initialise one " + driver + " board and run its task",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagSocket, Value: "mikrobus1", Usage: "socket the board sits in"},
			&cli.StringFlag{Name: flagBus, Usage: "i2c or spi, for boards with both"},
			&cli.IntFlag{Name: flagCount, Value: 5, Usage: "task runs before exiting"},
			&cli.DurationFlag{Name: flagInterval, Value: time.Second, Usage: "pause between runs"},
			paramFlag(),
		},
		Action: func(c *cli.Context) error {
			log := (*logger).With(zap.String("driver", driver))
			carrier, err := hal.Carrier(c.String(flagCarrier))
			if err != nil {
				return err
			}
			sock, err := carrier.Socket(c.String(flagSocket))
			if err != nil {
				return err
			}
			params, err := parseParams(c.StringSlice(flagParam))
			if err != nil {
				return err
			}
			host, err := platform.Open(platform.Options{Logger: log})
			if err != nil {
				return err
			}
			defer closeHost(host, log)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			task, err := boards.Build(driver, boards.BuildInput{
				Name:     driver,
				Provider: host,
				Socket:   sock,
				Bus:      c.String(flagBus),
				Params:   params,
				Clock:    clock.New(),
			})
			if err != nil {
				return err
			}
			return repeat(ctx, c.Int(flagCount), c.Duration(flagInterval), func() {
				v, err := task(ctx)
				if err != nil {
					log.Warn("task failed", zap.Error(err))
					return
				}
				log.Info("reading", zap.Any("value", v))
			})
		},
	}
}

func paramFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: flagParam, Usage: "driver parameter as `KEY=VALUE` (repeatable)"}
}

func run(c *cli.Context, logger *zap.Logger) error {
	cfg, err := loadConfig(c.String(flagConfig), c.String(flagCarrier))
	if err != nil {
		return err
	}
	host, err := platform.Open(platform.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer closeHost(host, logger)

	clk := clock.New()
	jobs, err := boards.Jobs(cfg, host, clk)
	for _, e := range multierr.Errors(err) {
		logger.Error("board skipped", zap.Error(e))
	}
	if len(jobs) == 0 {
		return errors.New("no boards could be started")
	}

	b := bus.NewBus(16)
	cfg.Publish(b.NewConnection("config"))
	svc, err := sampler.New(b.NewConnection("sampler"), sampler.Config{Clock: clk, Logger: logger.Named("sampler")}, jobs...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := b.NewConnection("ui")
	readings := ui.Subscribe(bus.T(sampler.TopicRoot, "+", sampler.TopicReading))
	failures := ui.Subscribe(bus.T(sampler.TopicRoot, "+", sampler.TopicError))
	beats := ui.Subscribe(heartbeat.Topic)
	defer ui.Disconnect()

	hb := &heartbeat.Service{Clock: clk, Logger: logger.Named("heartbeat"), Boards: svc.Names()}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()
	logger.Info("sampling", zap.Strings("boards", svc.Names()), zap.String("carrier", cfg.Carrier))
	for {
		select {
		case m := <-readings.Channel():
			r := m.Payload.(sampler.Reading)
			logger.Info("reading", zap.String("board", r.Name), zap.Time("at", r.At), zap.Any("value", r.Value))
		case m := <-failures.Channel():
			f := m.Payload.(sampler.Failure)
			logger.Warn("failure", zap.String("board", f.Name), zap.String("code", string(f.Code)), zap.Error(f.Err))
		case m := <-beats.Channel():
			hbeat := m.Payload.(heartbeat.Beat)
			logger.Debug("heartbeat", zap.Uint64("seq", hbeat.Seq), zap.Duration("uptime", hbeat.Uptime))
		case <-ctx.Done():
			<-done
			return nil
		}
	}
}

func loadConfig(path, carrier string) (*config.Config, error) {
	if path == "" {
		return config.Default(carrier)
	}
	return config.Read(path)
}

func closeHost(h *platform.Host, log *zap.Logger) {
	if err := h.Close(); err != nil {
		log.Warn("closing hardware", zap.Error(err))
	}
}

// parseParams turns KEY=VALUE pairs into a params map. Values stay strings;
// the board decoder converts them. The slice flag splits on commas, so a
// token without '=' continues the previous value ("levels=0", "500").
func parseParams(kvs []string) (map[string]any, error) {
	out := make(map[string]any, len(kvs))
	last := ""
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok && last != "" {
			out[last] = out[last].(string) + "," + strings.TrimSpace(kv)
			continue
		}
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("param %q: want KEY=VALUE", kv)
		}
		out[k] = strings.TrimSpace(v)
		last = k
	}
	return out, nil
}

// repeat calls fn count times, pausing between calls, until ctx ends.
func repeat(ctx context.Context, count int, pause time.Duration, fn func()) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pause):
			}
		}
		fn()
	}
	return nil
}
