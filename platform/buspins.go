package platform

import (
	"clickboards-go/errcode"
	"clickboards-go/hal"
)

// BusPins are the pins a carrier routes to one named bus. Unused fields
// stay hal.NC.
type BusPins struct {
	SDA, SCL        hal.PinID
	SCK, MOSI, MISO hal.PinID
	TX, RX          hal.PinID
}

// BusPinTable collects the bus pins of every socket on b, keyed by bus
// name. Sockets sharing a bus must agree on its pins.
func BusPinTable(b hal.Board) (map[string]BusPins, error) {
	out := map[string]BusPins{}
	for _, name := range b.Names() {
		s := b[name]
		for _, e := range []struct {
			bus  string
			pins BusPins
		}{
			{s.I2CBus, BusPins{SDA: s.SDA, SCL: s.SCL}},
			{s.SPIBus, BusPins{SCK: s.SCK, MOSI: s.MOSI, MISO: s.MISO}},
			{s.UARTBus, BusPins{TX: s.TX, RX: s.RX}},
		} {
			if e.bus == "" {
				continue
			}
			merged, ok := mergePins(out[e.bus], e.pins)
			if !ok {
				return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform", Msg: "socket " + name + " routes bus " + e.bus + " to other pins"}
			}
			out[e.bus] = merged
		}
	}
	return out, nil
}

func mergePins(a, b BusPins) (BusPins, bool) {
	ok := true
	pick := func(x, y hal.PinID) hal.PinID {
		switch {
		case x == hal.NC:
			return y
		case y != hal.NC && y != x:
			ok = false
		}
		return x
	}
	return BusPins{
		SDA: pick(a.SDA, b.SDA), SCL: pick(a.SCL, b.SCL),
		SCK: pick(a.SCK, b.SCK), MOSI: pick(a.MOSI, b.MOSI), MISO: pick(a.MISO, b.MISO),
		TX: pick(a.TX, b.TX), RX: pick(a.RX, b.RX),
	}, ok
}
