//go:build rp2040 || rp2350

package fmtx

import "handset-go/x/conv"

// Sprintf covers the verbs the firmware logs with: %s %q %d %x %v %t %T and
// %%, with width on %s/%d and precision on %s. Anything else is copied
// through as written.
func Sprintf(format string, a ...any) string {
	var b builder
	b.format(format, a)
	return string(b.buf)
}

func Errorf(format string, a ...any) error {
	return &stringError{Sprintf(format, a...)}
}

// Sprint spaces operands when neither side is a string, as fmt does.
func Sprint(a ...any) string {
	var b builder
	for i, v := range a {
		if i > 0 && !isString(v) && !isString(a[i-1]) {
			b.buf = append(b.buf, ' ')
		}
		b.value(v, 'v')
	}
	return string(b.buf)
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }

type builder struct{ buf []byte }

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func (b *builder) format(f string, args []any) {
	next := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' || i+1 == len(f) {
			b.buf = append(b.buf, c)
			continue
		}
		i++
		if f[i] == '%' {
			b.buf = append(b.buf, '%')
			continue
		}
		width, prec := 0, -1
		for i < len(f) && f[i] >= '0' && f[i] <= '9' {
			width = width*10 + int(f[i]-'0')
			i++
		}
		if i < len(f) && f[i] == '.' {
			prec = 0
			for i++; i < len(f) && f[i] >= '0' && f[i] <= '9'; i++ {
				prec = prec*10 + int(f[i]-'0')
			}
		}
		if i == len(f) {
			return
		}
		verb := f[i]
		if next >= len(args) {
			b.buf = append(b.buf, "%!"...)
			b.buf = append(b.buf, verb)
			b.buf = append(b.buf, "(MISSING)"...)
			continue
		}
		arg := args[next]
		next++

		start := len(b.buf)
		b.value(arg, verb)
		if prec >= 0 && (verb == 's' || verb == 'q') && len(b.buf)-start > prec {
			b.buf = b.buf[:start+prec]
		}
		if pad := width - (len(b.buf) - start); pad > 0 {
			b.buf = append(b.buf, make([]byte, pad)...)
			copy(b.buf[start+pad:], b.buf[start:])
			for j := start; j < start+pad; j++ {
				b.buf[j] = ' '
			}
		}
	}
}

func (b *builder) value(v any, verb byte) {
	var num [20]byte
	if verb == 'T' {
		b.buf = append(b.buf, typeName(v)...)
		return
	}
	switch x := v.(type) {
	case nil:
		b.buf = append(b.buf, "<nil>"...)
	case string:
		b.text(x, verb)
	case []byte:
		b.text(string(x), verb)
	case error:
		b.text(x.Error(), verb)
	case interface{ String() string }:
		b.text(x.String(), verb)
	case bool:
		if x {
			b.buf = append(b.buf, "true"...)
		} else {
			b.buf = append(b.buf, "false"...)
		}
	default:
		n, neg, ok := integer(v)
		if !ok {
			b.buf = append(b.buf, "?"...)
			return
		}
		if verb == 'x' {
			b.hex(n, neg)
			return
		}
		if neg {
			b.buf = append(b.buf, '-')
		}
		b.buf = append(b.buf, conv.Utoa(num[:], n)...)
	}
}

func (b *builder) text(s string, verb byte) {
	if verb != 'q' {
		b.buf = append(b.buf, s...)
		return
	}
	b.buf = append(b.buf, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			b.buf = append(b.buf, c)
		}
	}
	b.buf = append(b.buf, '"')
}

func (b *builder) hex(n uint64, neg bool) {
	const digits = "0123456789abcdef"
	var tmp [16]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = digits[n&0xF]
		n >>= 4
		if n == 0 {
			break
		}
	}
	if neg {
		b.buf = append(b.buf, '-')
	}
	b.buf = append(b.buf, tmp[i:]...)
}

// integer returns the magnitude and sign of any built-in integer.
func integer(v any) (uint64, bool, bool) {
	var s int64
	switch x := v.(type) {
	case int:
		s = int64(x)
	case int8:
		s = int64(x)
	case int16:
		s = int64(x)
	case int32:
		s = int64(x)
	case int64:
		s = x
	case uint:
		return uint64(x), false, true
	case uint8:
		return uint64(x), false, true
	case uint16:
		return uint64(x), false, true
	case uint32:
		return uint64(x), false, true
	case uint64:
		return x, false, true
	default:
		return 0, false, false
	}
	if s < 0 {
		return uint64(-s), true, true
	}
	return uint64(s), false, true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "<nil>"
	case string:
		return "string"
	case []byte:
		return "[]uint8"
	case int:
		return "int"
	case bool:
		return "bool"
	case error:
		return "error"
	}
	return "?"
}
