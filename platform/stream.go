// Package platform supplies hal.Provider implementations for real hardware.
//
// The Linux build drives GPIO, I²C and SPI through periph.io and serial
// ports through tarm/serial. The RP2040/RP2350 build uses TinyGo's machine
// package and uartx. Other targets get a provider that reports every
// resource as unsupported.
package platform

import (
	"context"
	"errors"
	"io"
	"sync"

	"clickboards-go/x/ring"
)

// Receive blocks until some bytes arrive, ctx ends or the port fails.
// Returning 0 with a nil error (or io.EOF) means a read timeout.
type Receive func(ctx context.Context, p []byte) (int, error)

// StreamUART turns a blocking serial port into a hal.UART: a background
// reader fills a bounded ring, Read drains it without blocking. When the
// ring overflows the oldest bytes are dropped.
type StreamUART struct {
	w io.Writer

	mu      sync.Mutex
	rx      *ring.Ring
	dropped int
	err     error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamUART starts the reader. size is rounded up to a power of two.
func NewStreamUART(w io.Writer, recv Receive, size int) *StreamUART {
	ctx, cancel := context.WithCancel(context.Background())
	u := &StreamUART{
		w:      w,
		rx:     ring.NewAtLeast(size),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go u.pump(ctx, recv)
	return u
}

func (u *StreamUART) pump(ctx context.Context, recv Receive) {
	defer close(u.done)
	var buf [256]byte
	for ctx.Err() == nil {
		n, err := recv(ctx, buf[:])
		if n > 0 {
			u.mu.Lock()
			u.dropped += u.rx.Write(buf[:n])
			u.mu.Unlock()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() == nil {
				u.mu.Lock()
				u.err = err
				u.mu.Unlock()
			}
			return
		}
	}
}

// Read copies buffered bytes into p. It returns 0, nil when nothing is
// pending and the reader's error once the buffer is drained after a failure.
func (u *StreamUART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rx.Len() == 0 {
		return 0, u.err
	}
	return u.rx.Read(p)
}

// Write sends p straight to the port.
func (u *StreamUART) Write(p []byte) (int, error) { return u.w.Write(p) }

// Buffered returns the number of bytes Read would return.
func (u *StreamUART) Buffered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rx.Len()
}

// Dropped returns how many received bytes were lost to overflow.
func (u *StreamUART) Dropped() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}

// Stop ends the reader and waits for it. The port itself stays open. A
// Receive that ignores ctx must return within its read timeout.
func (u *StreamUART) Stop() {
	u.cancel()
	<-u.done
}
