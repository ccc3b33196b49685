//go:build !(linux && !baremetal) && !rp2040 && !rp2350

package platform

import (
	"go.uber.org/zap"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// Options mirrors the Linux options so callers compile everywhere.
type Options struct {
	Logger *zap.Logger
}

// Host reports every resource as unsupported.
type Host struct{}

// Open returns a provider with no hardware behind it.
func Open(Options) (*Host, error) { return &Host{}, nil }

var errUnsupported = &errcode.E{C: errcode.Unsupported, Op: "platform", Msg: "no hardware support on this target"}

func (*Host) Pin(hal.PinID) (hal.Pin, error)                { return nil, errUnsupported }
func (*Host) I2C(string) (hal.I2C, error)                   { return nil, errUnsupported }
func (*Host) SPI(string, hal.SPIConfig) (hal.SPI, error)    { return nil, errUnsupported }
func (*Host) UART(string, hal.UARTConfig) (hal.UART, error) { return nil, errUnsupported }
func (*Host) Close() error                                  { return nil }
