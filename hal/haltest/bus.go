package haltest

import (
	"bytes"
	"strings"
	"sync"
)

// ----------------------------- I²C -------------------------------------------

// Target is a register-addressed I²C device. The first AddrBytes of every
// write select the register pointer (big-endian); remaining bytes are stored
// sequentially. Reads continue from the pointer.
type Target struct {
	Mem       []byte
	AddrBytes int  // 0 means 1
	IncMask   byte // bits stripped from the register byte (e.g. 0x80 auto-increment)

	// Busy makes the next Busy transactions fail with ErrNAK.
	Busy int
	// OnWrite is called after each byte store; it may rewrite Mem.
	OnWrite func(reg int, val byte)
	// OnRead is called before each byte load; it may rewrite Mem.
	OnRead func(reg int)

	ptr int
}

func (t *Target) addrBytes() int {
	if t.AddrBytes <= 0 {
		return 1
	}
	return t.AddrBytes
}

// Tx records one transaction.
type Tx struct {
	Addr uint16
	W    []byte
	Rn   int
}

// RegI2C is a multi-target I²C bus.
type RegI2C struct {
	mu      sync.Mutex
	targets map[uint16]*Target
	log     []Tx
	// Err, when set, fails every transaction.
	Err error
}

func NewRegI2C() *RegI2C { return &RegI2C{targets: map[uint16]*Target{}} }

// Attach places t at addr and returns it.
func (b *RegI2C) Attach(addr uint16, t *Target) *Target {
	b.mu.Lock()
	b.targets[addr] = t
	b.mu.Unlock()
	return t
}

func (b *RegI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, Tx{Addr: addr, W: append([]byte(nil), w...), Rn: len(r)})
	if b.Err != nil {
		return b.Err
	}
	t, ok := b.targets[addr]
	if !ok {
		return ErrNAK
	}
	if t.Busy > 0 {
		t.Busy--
		return ErrNAK
	}
	if n := t.addrBytes(); len(w) >= n {
		reg := 0
		for _, c := range w[:n] {
			reg = reg<<8 | int(c)
		}
		if n == 1 {
			reg &^= int(t.IncMask)
		}
		t.ptr = reg
		for _, v := range w[n:] {
			i := t.ptr % len(t.Mem)
			t.Mem[i] = v
			if t.OnWrite != nil {
				t.OnWrite(i, v)
			}
			t.ptr++
		}
	}
	for k := range r {
		i := t.ptr % len(t.Mem)
		if t.OnRead != nil {
			t.OnRead(i)
		}
		r[k] = t.Mem[i]
		t.ptr++
	}
	return nil
}

// Log returns a copy of every transaction so far.
func (b *RegI2C) Log() []Tx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Tx(nil), b.log...)
}

// ResetLog clears the transaction log.
func (b *RegI2C) ResetLog() {
	b.mu.Lock()
	b.log = nil
	b.mu.Unlock()
}

// ----------------------------- SPI -------------------------------------------

// RegSPI is a register-addressed SPI device in the common "R/W bit + address"
// framing: bit ReadBit of the first byte selects a read, IncBit enables
// address auto-increment, the remaining bits are the register.
type RegSPI struct {
	mu      sync.Mutex
	Regs    [128]byte
	ReadBit byte
	IncBit  byte
	log     [][]byte
}

func NewRegSPI() *RegSPI { return &RegSPI{ReadBit: 0x80, IncBit: 0x40} }

func (s *RegSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) == 0 {
		return nil
	}
	s.log = append(s.log, append([]byte(nil), w...))
	cmd := w[0]
	reg := int(cmd &^ (s.ReadBit | s.IncBit))
	inc := cmd&s.IncBit != 0
	if cmd&s.ReadBit != 0 {
		for i := 1; i < len(r); i++ {
			r[i] = s.Regs[reg%len(s.Regs)]
			if inc {
				reg++
			}
		}
		return nil
	}
	for _, v := range w[1:] {
		s.Regs[reg%len(s.Regs)] = v
		if inc {
			reg++
		}
	}
	return nil
}

func (s *RegSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

// Log returns the write side of every transfer.
func (s *RegSPI) Log() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.log...)
}

// ----------------------------- UART ------------------------------------------

// FakeUART is a scripted serial peer. Each Write is handed to Respond (if
// set) and whatever it returns becomes readable.
type FakeUART struct {
	mu      sync.Mutex
	rx      bytes.Buffer
	writes  []string
	Respond func(written string) string
}

// Feed queues bytes for the driver to read.
func (u *FakeUART) Feed(s string) {
	u.mu.Lock()
	u.rx.WriteString(s)
	u.mu.Unlock()
}

func (u *FakeUART) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := string(p)
	u.writes = append(u.writes, s)
	if u.Respond != nil {
		u.rx.WriteString(u.Respond(s))
	}
	return len(p), nil
}

func (u *FakeUART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rx.Len() == 0 {
		return 0, nil
	}
	return u.rx.Read(p)
}

func (u *FakeUART) Buffered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rx.Len()
}

// Writes returns everything written so far, one entry per Write call.
func (u *FakeUART) Writes() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.writes...)
}

// Written returns all writes concatenated.
func (u *FakeUART) Written() string { return strings.Join(u.Writes(), "") }

// ATResponder builds a Respond func from a command→reply table. Commands are
// matched after trimming the trailing CR/LF; unknown commands get
// "\r\nERROR\r\n".
func ATResponder(table map[string]string) func(string) string {
	return func(w string) string {
		cmd := strings.TrimRight(w, "\r\n")
		if reply, ok := table[cmd]; ok {
			return reply
		}
		return "\r\nERROR\r\n"
	}
}
