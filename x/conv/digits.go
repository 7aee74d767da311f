// Package conv writes decimal digits and padded fields into caller buffers
// without allocating, for LCD rows and AT command lines.
package conv

// Utoa writes n right-aligned at the end of buf and returns the digits.
// A 20-byte buf holds any uint64.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	if i == 0 {
		return buf
	}
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 || i == 0 {
			return buf[i:]
		}
	}
}

// Itoa is Utoa with a leading '-' for negative n.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	d := Utoa(buf, uint64(-n))
	i := len(buf) - len(d)
	if i == 0 {
		return d
	}
	buf[i-1] = '-'
	return buf[i-1:]
}
