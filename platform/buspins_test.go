package platform

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"clickboards-go/errcode"
	"clickboards-go/hal"
)

func TestBusPinTablePicoShield(t *testing.T) {
	got, err := BusPinTable(hal.PicoClickShield)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]BusPins{
		"i2c0":  {SDA: "GP4", SCL: "GP5"},
		"i2c1":  {SDA: "GP6", SCL: "GP7"},
		"spi0":  {SCK: "GP18", MOSI: "GP19", MISO: "GP16"},
		"spi1":  {SCK: "GP10", MOSI: "GP11", MISO: "GP12"},
		"uart0": {TX: "GP0", RX: "GP1"},
		"uart1": {TX: "GP8", RX: "GP9"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBusPinTableSharedBus(t *testing.T) {
	// The Pi shield shares /dev/i2c-1 between sockets with kernel-owned pins.
	got, err := BusPinTable(hal.PiClickShield)
	if err != nil {
		t.Fatal(err)
	}
	if got["/dev/i2c-1"] != (BusPins{}) {
		t.Fatalf("i2c-1 pins %+v", got["/dev/i2c-1"])
	}

	clash := hal.Board{
		"a": {I2CBus: "i2c0", SDA: "GP4", SCL: "GP5"},
		"b": {I2CBus: "i2c0", SDA: "GP8", SCL: "GP9"},
	}
	if _, err := BusPinTable(clash); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("clash accepted: %v", err)
	}
}
