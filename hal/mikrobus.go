package hal

import (
	"sort"

	"clickboards-go/errcode"
)

// Socket is one MikroBUS socket: the twelve signal positions plus the names
// of the buses routed to it.
type Socket struct {
	AN   PinID
	RST  PinID
	CS   PinID
	SCK  PinID
	MISO PinID
	MOSI PinID
	PWM  PinID
	INT  PinID
	RX   PinID
	TX   PinID
	SCL  PinID
	SDA  PinID

	I2CBus  string
	SPIBus  string
	UARTBus string
}

// Board maps socket names ("mikrobus1", ...) to their wiring.
type Board map[string]Socket

// Socket looks a socket up by name.
func (b Board) Socket(name string) (Socket, error) {
	s, ok := b[name]
	if !ok {
		return Socket{}, &errcode.E{C: errcode.UnknownPin, Op: "mikrobus", Msg: "unknown socket " + name}
	}
	return s, nil
}

// Names returns the socket names in sorted order.
func (b Board) Names() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PiClickShield is the MikroE Pi Click Shield (BCM numbering, Linux device
// names).
var PiClickShield = Board{
	"mikrobus1": {
		AN: "GPIO4", RST: "GPIO5", CS: "GPIO8", PWM: "GPIO18", INT: "GPIO6",
		I2CBus: "/dev/i2c-1", SPIBus: "/dev/spidev0.0", UARTBus: "/dev/ttyS0",
	},
	"mikrobus2": {
		AN: "GPIO13", RST: "GPIO19", CS: "GPIO7", PWM: "GPIO17", INT: "GPIO26",
		I2CBus: "/dev/i2c-1", SPIBus: "/dev/spidev0.1", UARTBus: "/dev/ttyS0",
	},
}

// PicoClickShield is a Raspberry Pi Pico carrier with two sockets (RP2040
// GPIO numbering, TinyGo bus names).
var PicoClickShield = Board{
	"mikrobus1": {
		AN: "GP26", RST: "GP20", CS: "GP17", SCK: "GP18", MISO: "GP16", MOSI: "GP19",
		PWM: "GP21", INT: "GP22", RX: "GP1", TX: "GP0", SCL: "GP5", SDA: "GP4",
		I2CBus: "i2c0", SPIBus: "spi0", UARTBus: "uart0",
	},
	"mikrobus2": {
		AN: "GP27", RST: "GP14", CS: "GP13", SCK: "GP10", MISO: "GP12", MOSI: "GP11",
		PWM: "GP15", INT: "GP28", RX: "GP9", TX: "GP8", SCL: "GP7", SDA: "GP6",
		I2CBus: "i2c1", SPIBus: "spi1", UARTBus: "uart1",
	},
}

// Carriers lists the known socket layouts by name.
var Carriers = map[string]Board{
	"pi-click-shield":   PiClickShield,
	"pico-click-shield": PicoClickShield,
}

// Carrier looks a layout up by name.
func Carrier(name string) (Board, error) {
	b, ok := Carriers[name]
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "mikrobus", Msg: "unknown carrier " + name}
	}
	return b, nil
}
