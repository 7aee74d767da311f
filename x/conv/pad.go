package conv

// PutRight right-aligns src into dst, filling the left with spaces.
// src longer than dst keeps its rightmost bytes.
func PutRight(dst, src []byte) {
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	pad := len(dst) - len(src)
	for i := 0; i < pad; i++ {
		dst[i] = ' '
	}
	copy(dst[pad:], src)
}

// PutLeft left-aligns src into dst, filling the right with spaces.
func PutLeft(dst []byte, src string) int {
	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
	return n
}

// Fixed1 writes n/10 with one decimal place (e.g. 123 -> "12.3").
func Fixed1(buf []byte, n int64) []byte {
	if len(buf) < 4 {
		return buf[:0]
	}
	neg := n < 0
	if neg {
		n = -n
	}
	frac := byte('0' + n%10)
	head := Itoa(buf[:len(buf)-2], n/10)
	i := len(buf) - 2 - len(head)
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	buf[len(buf)-2] = '.'
	buf[len(buf)-1] = frac
	return buf[i:]
}

// Atoi parses an optionally signed decimal. It rejects empty input, stray
// characters and values that overflow int32.
func Atoi(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<31-1 {
			return 0, false
		}
	}
	if neg {
		n = -n
	}
	return n, true
}
