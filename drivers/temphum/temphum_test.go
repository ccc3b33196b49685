package temphum

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"clickboards-go/hal/haltest"
)

// sensor answers AHT20 commands from a fixed sample.
type sensor struct {
	status   byte
	busyFor  int // Collect attempts that report busy
	hum, tmp uint32
	badCRC   bool
	cmds     []byte
}

func (s *sensor) Tx(addr uint16, w, r []byte) error {
	if addr != Address {
		return haltest.ErrNAK
	}
	if len(w) > 0 {
		s.cmds = append(s.cmds, w[0])
		switch w[0] {
		case cmdStatus:
			r[0] = s.status
		case cmdInitialize:
			s.status |= statusCalibrated
		}
		return nil
	}
	st := s.status
	if s.busyFor > 0 {
		s.busyFor--
		st |= statusBusy
	}
	b := []byte{
		st,
		byte(s.hum >> 12), byte(s.hum >> 4),
		byte(s.hum<<4) | byte(s.tmp>>16&0x0F),
		byte(s.tmp >> 8), byte(s.tmp),
	}
	b = append(b, crc8(b))
	if s.badCRC {
		b[6] ^= 0xFF
	}
	copy(r, b)
	return nil
}

func newDevice(t *testing.T, s *sensor) *Device {
	t.Helper()
	p := haltest.NewProvider().AddI2C("i2c", s)
	cfg := DefaultConfig()
	cfg.MapMikroBUS(haltest.Socket)
	cfg.Clock = haltest.NewClock()
	d, err := New(p, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDefaultCfgCalibratesOnce(t *testing.T) {
	s := &sensor{}
	d := newDevice(t, s)
	if err := d.DefaultCfg(); err != nil {
		t.Fatal(err)
	}
	if err := d.DefaultCfg(); err != nil {
		t.Fatal(err)
	}
	want := []byte{cmdSoftReset, cmdStatus, cmdInitialize, cmdSoftReset, cmdStatus}
	if diff := cmp.Diff(want, s.cmds); diff != "" {
		t.Fatalf("commands (-want +got):\n%s", diff)
	}
}

func TestReadWaitsForConversion(t *testing.T) {
	// 50 %RH, 25 °C.
	s := &sensor{status: statusCalibrated, busyFor: 3, hum: 0x80000, tmp: 0x60000}
	d := newDevice(t, s)
	got, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got.DeciRelHumidity() != 500 || got.DeciCelsius() != 250 {
		t.Fatalf("%d d%%RH %d d°C", got.DeciRelHumidity(), got.DeciCelsius())
	}
	if got.Celsius() != 25 || got.RelHumidity() != 50 {
		t.Fatalf("%v °C %v %%RH", got.Celsius(), got.RelHumidity())
	}
	if d.Last() != got {
		t.Fatal("last sample not cached")
	}
}

func TestReadTimesOut(t *testing.T) {
	s := &sensor{status: statusCalibrated, busyFor: 1000}
	d := newDevice(t, s)
	if _, err := d.Read(); err != ErrTimeout {
		t.Fatalf("got %v", err)
	}
}

func TestCollectChecksCRC(t *testing.T) {
	s := &sensor{status: statusCalibrated, badCRC: true}
	d := newDevice(t, s)
	if _, err := d.Collect(); err != ErrProtocol {
		t.Fatalf("got %v", err)
	}
	s.status = 0
	if _, err := d.Collect(); err != ErrNotReady {
		t.Fatalf("uncalibrated: got %v", err)
	}
}

func TestCRCKnownVector(t *testing.T) {
	// CRC-8 poly 0x31 init 0xFF of 0xBE 0xEF is 0x92.
	if got := crc8([]byte{0xBE, 0xEF}); got != 0x92 {
		t.Fatalf("crc8 = %#x", got)
	}
}
