// Package heartbeat publishes a retained liveness beat so bus clients can
// tell a silent board from a stopped process.
package heartbeat

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"clickboards-go/bus"
)

// DefaultInterval is used until config/heartbeat says otherwise.
const DefaultInterval = 5 * time.Second

var (
	// Topic carries Beat payloads.
	Topic = bus.T("heartbeat")
	// TopicConfig accepts a Config payload.
	TopicConfig = bus.T("config", "heartbeat")
)

// Config changes the beat period.
type Config struct {
	Interval time.Duration `yaml:"interval"`
}

// Beat is one heartbeat.
type Beat struct {
	At     time.Time
	Uptime time.Duration
	Boards []string
	Seq    uint64
}

// Service emits beats until its context ends.
type Service struct {
	Clock  clock.Clock
	Logger *zap.Logger
	Boards []string
}

// Start runs the service in the background.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.Run(ctx, conn)
	return nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfgSub := conn.Subscribe(TopicConfig)
	defer conn.Unsubscribe(cfgSub)
	cfgCh := cfgSub.Channel()

	interval := DefaultInterval
	tick := clk.Ticker(interval)
	defer tick.Stop()

	start := clk.Now()
	var seq uint64
	beat := func(now time.Time) {
		seq++
		conn.Publish(conn.NewMessage(Topic, Beat{At: now, Uptime: now.Sub(start), Boards: s.Boards, Seq: seq}, true))
	}
	beat(start)

	for {
		select {
		case <-ctx.Done():
			log.Debug("heartbeat stopping")
			return
		case t := <-tick.C:
			beat(t)
		case msg, ok := <-cfgCh:
			if !ok {
				cfgCh = nil
				continue
			}
			cfg, ok := msg.Payload.(Config)
			if !ok || cfg.Interval <= 0 {
				log.Warn("ignoring heartbeat config", zap.Any("payload", msg.Payload))
				continue
			}
			interval = cfg.Interval
			tick.Reset(interval)
			log.Info("heartbeat interval set", zap.Duration("interval", interval))
		}
	}
}
