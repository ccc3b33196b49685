// Package conv formats integers into caller buffers without fmt or strconv,
// so AT command strings can be assembled on MCU builds without allocating.
package conv

// Itoa writes base-10 representation of n into buf and returns the used slice.
// buf should be length >= 20 for int64.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	out := Utoa(buf, uint64(-n))
	i := len(buf) - len(out)
	if i == 0 {
		return out
	}
	i--
	buf[i] = '-'
	return buf[i:]
}

// Utoa writes base-10 representation of n into buf and returns the used slice.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf[i:]
}

const hexd = "0123456789ABCDEF"

// U8Hex writes two uppercase hex digits.
func U8Hex(buf []byte, b byte) []byte {
	if len(buf) < 2 {
		return buf[:0]
	}
	buf[0] = hexd[b>>4]
	buf[1] = hexd[b&0x0F]
	return buf[:2]
}

// AppendInt appends the decimal form of n to dst.
func AppendInt(dst []byte, n int64) []byte {
	var tmp [20]byte
	return append(dst, Itoa(tmp[:], n)...)
}
