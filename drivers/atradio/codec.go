package atradio

import "handset-go/x/conv"

// Op is a remote pin operation.
type Op uint8

const (
	ReadDigital Op = iota
	ReadAnalog
	WriteDigital
	WriteAnalog
)

var opCodes = [...]string{"RD", "RA", "WD", "WA"}

func (o Op) String() string {
	if int(o) < len(opCodes) {
		return opCodes[o]
	}
	return "??"
}

func (o Op) Write() bool { return o == WriteDigital || o == WriteAnalog }

func opFromCode(a, b byte) (Op, bool) {
	for i, c := range opCodes {
		if c[0] == a && c[1] == b {
			return Op(i), true
		}
	}
	return 0, false
}

// Request is "<seq>:<op><pin>[=<value>]".
type Request struct {
	Seq   uint8
	Op    Op
	Pin   uint8
	Value int
}

func AppendRequest(dst []byte, r Request) []byte {
	var num [12]byte
	dst = append(dst, conv.Utoa(num[:], uint64(r.Seq))...)
	dst = append(dst, ':')
	dst = append(dst, r.Op.String()...)
	dst = append(dst, conv.Utoa(num[:], uint64(r.Pin))...)
	if r.Op.Write() {
		dst = append(dst, '=')
		dst = append(dst, conv.Itoa(num[:], int64(r.Value))...)
	}
	return dst
}

func ParseRequest(b []byte) (Request, bool) {
	var r Request
	colon := -1
	for i, c := range b {
		if c == ':' {
			colon = i
			break
		}
	}
	if colon <= 0 || len(b) < colon+4 {
		return r, false
	}
	seq, ok := conv.Atoi(b[:colon])
	if !ok || seq < 1 || seq > 255 {
		return r, false
	}
	op, ok := opFromCode(b[colon+1], b[colon+2])
	if !ok {
		return r, false
	}
	rest := b[colon+3:]
	pinb, val := rest, []byte(nil)
	for i, c := range rest {
		if c == '=' {
			pinb, val = rest[:i], rest[i+1:]
			break
		}
	}
	pin, ok := conv.Atoi(pinb)
	if !ok || pin < 0 || pin > 255 {
		return r, false
	}
	r.Seq, r.Op, r.Pin = uint8(seq), op, uint8(pin)
	if op.Write() {
		if r.Value, ok = conv.Atoi(val); !ok {
			return r, false
		}
	} else if val != nil {
		return r, false
	}
	return r, true
}

// Reply is "<seq>=<value>" or "<seq>!" for a failure.
type Reply struct {
	Seq   uint8
	Value int
	OK    bool
}

func AppendReply(dst []byte, r Reply) []byte {
	var num [12]byte
	dst = append(dst, conv.Utoa(num[:], uint64(r.Seq))...)
	if !r.OK {
		return append(dst, '!')
	}
	dst = append(dst, '=')
	return append(dst, conv.Itoa(num[:], int64(r.Value))...)
}

func ParseReply(b []byte) (Reply, bool) {
	var r Reply
	for i, c := range b {
		switch c {
		case '=', '!':
			seq, ok := conv.Atoi(b[:i])
			if !ok || seq < 1 || seq > 255 {
				return r, false
			}
			r.Seq = uint8(seq)
			if c == '!' {
				return r, i == len(b)-1
			}
			r.Value, ok = conv.Atoi(b[i+1:])
			r.OK = ok
			return r, ok
		}
	}
	return r, false
}
