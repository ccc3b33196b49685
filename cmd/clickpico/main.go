//go:build rp2040 || rp2350

// Command clickpico is the Pico firmware demo: a Temp&Hum click in socket 1
// and a GNSS click in socket 2 of the Pico click shield, printed over the
// USB console once a second.
package main

import (
	"time"

	"clickboards-go/drivers/gnss"
	"clickboards-go/drivers/temphum"
	"clickboards-go/hal"
	"clickboards-go/platform"
	"clickboards-go/x/conv"
)

// deci renders a fixed-point tenths value ("-12.3").
func deci(v int32) string {
	var b []byte
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	b = conv.AppendInt(b, int64(v/10))
	b = append(b, '.')
	b = conv.AppendInt(b, int64(v%10))
	return string(b)
}

func micro(v float64) string {
	return string(conv.AppendInt(nil, int64(v*1e6)))
}

func main() {
	time.Sleep(2 * time.Second)
	println("[main] boot")

	host, err := platform.Open(hal.PicoClickShield)
	if err != nil {
		println("[main] platform:", err.Error())
		return
	}
	s1, _ := hal.PicoClickShield.Socket("mikrobus1")
	s2, _ := hal.PicoClickShield.Socket("mikrobus2")

	thCfg := temphum.DefaultConfig()
	thCfg.MapMikroBUS(s1)
	th, err := temphum.New(host, thCfg)
	if err == nil {
		err = th.DefaultCfg()
	}
	if err != nil {
		println("[temphum] init failed:", err.Error())
		th = nil
	}

	gCfg := gnss.DefaultConfig()
	gCfg.MapMikroBUS(s2)
	gps, err := gnss.New(host, gCfg)
	if err == nil {
		err = gps.DefaultCfg()
	}
	if err != nil {
		println("[gnss] init failed:", err.Error())
		gps = nil
	}

	for {
		if th != nil {
			if s, err := th.Read(); err != nil {
				println("[temphum] read:", err.Error())
			} else {
				println("[temphum] t=", deci(s.DeciCelsius()), "C rh=", deci(s.DeciRelHumidity()), "%")
			}
		}
		if gps != nil {
			if _, err := gps.Update(); err != nil {
				println("[gnss] parse:", err.Error())
			}
			if f := gps.Fix(); gps.HasFix() {
				println("[gnss] lat(u)=", micro(f.Latitude), "lon(u)=", micro(f.Longitude), "sats=", f.Satellites)
			} else {
				println("[gnss] no fix, sats=", f.Satellites)
			}
		}
		time.Sleep(time.Second)
	}
}
