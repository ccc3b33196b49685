package sampler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"clickboards-go/bus"
	"clickboards-go/errcode"
)

func next(t *testing.T, s *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-s.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message on %v", s.Topic())
		return nil
	}
}

// start runs svc until the test ends.
func start(t *testing.T, svc *Service) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestPublishesReadingsAndFailures(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("sampler")
	watch := b.NewConnection("watch")
	readings := watch.Subscribe(bus.T(TopicRoot, "+", TopicReading))
	failures := watch.Subscribe(bus.T(TopicRoot, "+", TopicError))

	var n atomic.Int32
	mock := clock.NewMock()
	svc, err := New(conn, Config{Clock: mock, Logger: zaptest.NewLogger(t)},
		Job{Name: "ambient", Interval: time.Second, Task: func(context.Context) (any, error) {
			return n.Add(1), nil
		}},
		Job{Name: "gsm", Interval: time.Minute, Task: func(context.Context) (any, error) {
			return nil, &errcode.E{C: errcode.Timeout, Op: "AT"}
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	start(t, svc)

	m := next(t, readings)
	r := m.Payload.(Reading)
	if r.Name != "ambient" || r.Value.(int32) != 1 || !m.Retained {
		t.Fatalf("first reading %+v", m)
	}
	f := next(t, failures).Payload.(Failure)
	if f.Name != "gsm" || f.Code != errcode.Timeout {
		t.Fatalf("failure %+v", f)
	}

	mock.Add(time.Second)
	if r := next(t, readings).Payload.(Reading); r.Value.(int32) != 2 {
		t.Fatalf("second reading %+v", r)
	}

	late := b.NewConnection("late").Subscribe(ReadingTopic("ambient"))
	if r := next(t, late).Payload.(Reading); r.Value.(int32) != 2 {
		t.Fatalf("retained reading %+v", r)
	}
}

func TestReadOnRequest(t *testing.T) {
	b := bus.NewBus(8)
	mock := clock.NewMock()
	svc, err := New(b.NewConnection("sampler"), Config{Clock: mock},
		Job{Name: "rtc", Interval: time.Hour, Task: func(context.Context) (any, error) {
			return "12:00:00", nil
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	first := b.NewConnection("watch").Subscribe(ReadingTopic("rtc"))
	ctx := start(t, svc)
	next(t, first)

	client := b.NewConnection("client")
	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	reply, err := client.RequestWait(rctx, client.NewMessage(ReadTopic("rtc"), nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := reply.Payload.(Reading); !ok || r.Value != "12:00:00" {
		t.Fatalf("reply %#v", reply.Payload)
	}
	reply, err = client.RequestWait(rctx, client.NewMessage(ReadTopic("nope"), nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := reply.Payload.(Failure); !ok || f.Code != errcode.Unsupported {
		t.Fatalf("reply %#v", reply.Payload)
	}
}

func TestNewValidatesJobs(t *testing.T) {
	conn := bus.NewBus(1).NewConnection("x")
	task := func(context.Context) (any, error) { return nil, nil }
	bad := [][]Job{
		{{Name: "", Interval: time.Second, Task: task}},
		{{Name: "a", Interval: 0, Task: task}},
		{{Name: "a", Interval: time.Second}},
		{{Name: "a", Interval: time.Second, Task: task}, {Name: "a", Interval: time.Second, Task: task}},
	}
	for i, jobs := range bad {
		if _, err := New(conn, Config{}, jobs...); errcode.Of(err) != errcode.InvalidParams {
			t.Errorf("case %d: got %v", i, err)
		}
	}
	svc, err := New(conn, Config{}, Job{Name: "b", Interval: time.Second, Task: task}, Job{Name: "a", Interval: time.Second, Task: task})
	if err != nil {
		t.Fatal(err)
	}
	if got := svc.Names(); len(got) != 2 || got[0] != "b" {
		t.Fatalf("names %v", got)
	}
}

func TestKeepsSamplingAfterConnectionDrop(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("sampler")
	readings := b.NewConnection("watch").Subscribe(ReadingTopic("clock"))

	var n atomic.Int32
	mock := clock.NewMock()
	svc, err := New(conn, Config{Clock: mock, Logger: zaptest.NewLogger(t)},
		Job{Name: "clock", Interval: time.Second, Task: func(context.Context) (any, error) {
			return n.Add(1), nil
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	start(t, svc)
	next(t, readings)

	// Closes the read-request subscription under the running service.
	conn.Disconnect()
	mock.Add(time.Second)
	if r := next(t, readings).Payload.(Reading); r.Value.(int32) != 2 {
		t.Fatalf("reading after drop %+v", r)
	}
}
