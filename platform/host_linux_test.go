//go:build linux && !baremetal

package platform

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"clickboards-go/hal"
)

// onceSPIPort refuses a second Connect like the sysfs spidev driver.
type onceSPIPort struct {
	connects int
	closed   bool
	last     []byte
}

func (p *onceSPIPort) String() string                    { return "spidev-test" }
func (p *onceSPIPort) LimitSpeed(physic.Frequency) error { return nil }
func (p *onceSPIPort) Close() error                      { p.closed = true; return nil }

func (p *onceSPIPort) Connect(physic.Frequency, spi.Mode, int) (spi.Conn, error) {
	p.connects++
	if p.connects > 1 {
		return nil, errors.New("Connect() can only be called once")
	}
	return &recordConn{port: p}, nil
}

type recordConn struct{ port *onceSPIPort }

func (c *recordConn) String() string               { return "spidev-test-conn" }
func (c *recordConn) Duplex() conn.Duplex          { return conn.Full }
func (c *recordConn) TxPackets([]spi.Packet) error { return nil }
func (c *recordConn) Tx(w, r []byte) error {
	c.port.last = append([]byte(nil), w...)
	return nil
}

func newTestHost(t *testing.T, ports map[string]*onceSPIPort) *Host {
	return &Host{
		log:   zaptest.NewLogger(t),
		spi:   map[string]*hostSPIPort{},
		uarts: map[string]*hostUART{},
		openSPI: func(name string) (spi.PortCloser, error) {
			p, ok := ports[name]
			if !ok {
				return nil, errors.New("no such port")
			}
			return p, nil
		},
	}
}

func TestSPIPortConnectedOnce(t *testing.T) {
	port := &onceSPIPort{}
	h := newTestHost(t, map[string]*onceSPIPort{"/dev/spidev0.0": port})

	first, err := h.SPI("/dev/spidev0.0", hal.SPIConfig{Frequency: 1_000_000, Mode: 3})
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.SPI("/dev/spidev0.0", hal.SPIConfig{Frequency: 500_000, Mode: 0})
	if err != nil {
		t.Fatalf("second board on the same port: %v", err)
	}
	if port.connects != 1 {
		t.Fatalf("connected %d times", port.connects)
	}
	for i, b := range []hal.SPI{first, second} {
		if err := b.Tx([]byte{0x8F, byte(i)}, nil); err != nil || port.last[1] != byte(i) {
			t.Fatalf("conn %d tx: %v %x", i, err, port.last)
		}
	}

	if _, err := h.SPI("/dev/spidev9.9", hal.SPIConfig{}); err == nil {
		t.Fatal("unknown port accepted")
	}
	if err := h.Close(); err != nil || !port.closed {
		t.Fatalf("close: %v closed=%v", err, port.closed)
	}
}
