package ring

import (
	"bytes"
	"testing"
)

func seq(from, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(from + i)
	}
	return b
}

func TestOverflowKeepsNewestInOrder(t *testing.T) {
	const capacity = 64
	for n := 0; n <= 3*capacity; n++ {
		r := New(capacity)
		src := seq(0, n)

		dropped := 0
		// Mix of chunk sizes so both the wrap path and the big-write path run.
		for off := 0; off < n; {
			step := 1 + off%13
			if off+step > n {
				step = n - off
			}
			dropped += r.Write(src[off : off+step])
			off += step
		}

		want := src
		if n > capacity {
			want = src[n-capacity:]
		}
		if got := r.Bytes(); !bytes.Equal(got, want) {
			t.Fatalf("n=%d: got %v want %v", n, got, want)
		}
		wantDropped := 0
		if n > capacity {
			wantDropped = n - capacity
		}
		if dropped != wantDropped {
			t.Fatalf("n=%d: dropped=%d want %d", n, dropped, wantDropped)
		}
	}
}

func TestSingleLargeWrite(t *testing.T) {
	r := New(8)
	r.Write([]byte("abc"))
	if d := r.Write([]byte("0123456789")); d != 5 {
		t.Fatalf("dropped=%d want 5", d)
	}
	if got := r.String(); got != "23456789" {
		t.Fatalf("got %q", got)
	}
}

func TestReadLineAndDiscard(t *testing.T) {
	r := New(32)
	r.Write([]byte("AT\r\r\nOK\r\npartial"))

	line, ok := r.ReadLine()
	if !ok || string(line) != "AT\r" {
		t.Fatalf("first line %q ok=%v", line, ok)
	}
	line, ok = r.ReadLine()
	if !ok || string(line) != "OK" {
		t.Fatalf("second line %q ok=%v", line, ok)
	}
	if _, ok = r.ReadLine(); ok {
		t.Fatal("partial line should not be returned")
	}
	if !r.Contains("part") {
		t.Fatal("expected partial data to remain")
	}
	r.Discard(4)
	if r.String() != "ial" {
		t.Fatalf("after discard %q", r.String())
	}
	r.Reset()
	if r.Len() != 0 || r.Space() != r.Cap() {
		t.Fatal("reset should empty the ring")
	}
}

func TestNewAtLeastRoundsUp(t *testing.T) {
	if c := NewAtLeast(100).Cap(); c != 128 {
		t.Fatalf("cap=%d want 128", c)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("New(3) should panic")
		}
	}()
	New(3)
}
