package config

import (
	"clickboards-go/errcode"
)

// Built-in board lists, one per carrier, used when no file is given.

const cfgPiShield = `
carrier: pi-click-shield
boards:
  - name: climate
    driver: temphum
    socket: mikrobus1
    interval: 2s
  - name: clock
    driver: rtc
    socket: mikrobus2
    interval: 1s
`

const cfgPicoShield = `
carrier: pico-click-shield
boards:
  - name: climate
    driver: temphum
    socket: mikrobus1
    interval: 2s
  - name: position
    driver: gnss
    socket: mikrobus2
    interval: 1s
`

var embeddedConfigs = map[string]string{
	"pi-click-shield":   cfgPiShield,
	"pico-click-shield": cfgPicoShield,
}

// Default returns the built-in board list for a carrier.
func Default(carrier string) (*Config, error) {
	raw, ok := embeddedConfigs[carrier]
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "config", Msg: "no default for carrier " + carrier}
	}
	return Parse([]byte(raw))
}
