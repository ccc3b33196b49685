// Package sampler runs Click board tasks on their own periods and publishes
// the results on the bus:
//
//	click/<name>/reading  retained, payload Reading
//	click/<name>/error    payload Failure
//
// A request on click/<name>/read runs the task once, out of schedule, and
// replies with the Reading or Failure.
package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"clickboards-go/bus"
	"clickboards-go/errcode"
)

// Topic tokens.
const (
	TopicRoot    = "click"
	TopicReading = "reading"
	TopicError   = "error"
	TopicRead    = "read"
)

// ReadingTopic returns click/<name>/reading.
func ReadingTopic(name string) bus.Topic { return bus.T(TopicRoot, name, TopicReading) }

// ErrorTopic returns click/<name>/error.
func ErrorTopic(name string) bus.Topic { return bus.T(TopicRoot, name, TopicError) }

// ReadTopic returns click/<name>/read.
func ReadTopic(name string) bus.Topic { return bus.T(TopicRoot, name, TopicRead) }

// Task performs one measurement or action and returns its result.
type Task func(ctx context.Context) (any, error)

// Job is a named task and its period.
type Job struct {
	Name     string
	Interval time.Duration
	Task     Task
}

// Reading is a successful task result.
type Reading struct {
	Name  string
	At    time.Time
	Value any
}

// Failure is a failed task run.
type Failure struct {
	Name string
	At   time.Time
	Code errcode.Code
	Err  error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Name, f.Err) }

// Config holds the collaborators. Zero fields take defaults.
type Config struct {
	Clock  clock.Clock
	Logger *zap.Logger
}

type job struct {
	Job
	mu sync.Mutex // tasks drive hardware; one run at a time
}

// Service owns the jobs.
type Service struct {
	conn *bus.Connection
	clk  clock.Clock
	log  *zap.Logger
	jobs map[string]*job
	keys []string
}

// New validates jobs and builds a service publishing through conn.
func New(conn *bus.Connection, cfg Config, jobs ...Job) (*Service, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Service{conn: conn, clk: cfg.Clock, log: cfg.Logger, jobs: map[string]*job{}}
	for _, j := range jobs {
		switch {
		case j.Name == "":
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "sampler", Msg: "job without name"}
		case j.Task == nil || j.Interval <= 0:
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "sampler", Msg: "job " + j.Name + " needs a task and a positive interval"}
		case s.jobs[j.Name] != nil:
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "sampler", Msg: "duplicate job " + j.Name}
		}
		s.jobs[j.Name] = &job{Job: j}
		s.keys = append(s.keys, j.Name)
	}
	return s, nil
}

// Names lists the jobs in registration order.
func (s *Service) Names() []string { return append([]string(nil), s.keys...) }

// Start runs the service in the background.
func (s *Service) Start(ctx context.Context) error {
	go s.Run(ctx)
	return nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	reqs := s.conn.Subscribe(bus.T(TopicRoot, "+", TopicRead))
	defer s.conn.Unsubscribe(reqs)
	reqCh := reqs.Channel()

	var wg sync.WaitGroup
	for _, name := range s.keys {
		j := s.jobs[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, j)
		}()
	}
	s.log.Info("sampler started", zap.Strings("boards", s.keys))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.log.Info("sampler stopped")
			return
		case m, ok := <-reqCh:
			if !ok {
				// Connection dropped; keep sampling without on-demand reads.
				reqCh = nil
				continue
			}
			name, _ := m.Topic[1].(string)
			j := s.jobs[name]
			if j == nil {
				s.conn.Reply(m, Failure{Name: name, At: s.clk.Now(), Code: errcode.Unsupported, Err: errcode.Unsupported}, false)
				continue
			}
			s.conn.Reply(m, s.run(ctx, j), false)
		}
	}
}

func (s *Service) loop(ctx context.Context, j *job) {
	tick := s.clk.Ticker(j.Interval)
	defer tick.Stop()
	s.run(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.run(ctx, j)
		}
	}
}

// run executes a job once and publishes the outcome, which it also returns.
func (s *Service) run(ctx context.Context, j *job) any {
	j.mu.Lock()
	v, err := j.Task(ctx)
	j.mu.Unlock()
	now := s.clk.Now()
	if err != nil {
		f := Failure{Name: j.Name, At: now, Code: errcode.Of(err), Err: err}
		s.log.Warn("task failed", zap.String("board", j.Name), zap.String("code", string(f.Code)), zap.Error(err))
		s.conn.Publish(s.conn.NewMessage(ErrorTopic(j.Name), f, false))
		return f
	}
	r := Reading{Name: j.Name, At: now, Value: v}
	s.log.Debug("reading", zap.String("board", j.Name), zap.Any("value", v))
	s.conn.Publish(s.conn.NewMessage(ReadingTopic(j.Name), r, true))
	return r
}
