package atradio

import (
	"context"
	"sync"
	"time"

	"handset-go/x/conv"
)

// Air emulates a set of modules sharing one radio channel. Each AirPort
// behaves like the UART of one module: AT commands written to it are
// acknowledged, and AT+SEND reaches every other port whose address matches.
type Air struct {
	mu    sync.Mutex
	ports []*AirPort
	// Drop, when set, discards matching transmissions in flight.
	drop  func(from, to uint16, data []byte) bool
	delay time.Duration
}

func NewAir() *Air { return &Air{} }

// SetDrop installs a loss filter; nil clears it.
func (a *Air) SetDrop(f func(from, to uint16, data []byte) bool) {
	a.mu.Lock()
	a.drop = f
	a.mu.Unlock()
}

// SetDelay holds every delivery for d.
func (a *Air) SetDelay(d time.Duration) {
	a.mu.Lock()
	a.delay = d
	a.mu.Unlock()
}

// Port attaches a new module to the channel.
func (a *Air) Port() *AirPort {
	p := &AirPort{air: a, rd: make(chan struct{}, 1)}
	a.mu.Lock()
	a.ports = append(a.ports, p)
	a.mu.Unlock()
	return p
}

func (a *Air) transmit(from *AirPort, to uint16, data []byte) {
	a.mu.Lock()
	drop, delay := a.drop, a.delay
	var dst []*AirPort
	for _, p := range a.ports {
		if p != from && p.address() == to {
			dst = append(dst, p)
		}
	}
	a.mu.Unlock()
	src := from.address()
	if drop != nil && drop(src, to, data) {
		return
	}
	var num [8]byte
	line := append([]byte("+RCV="), conv.Utoa(num[:], uint64(src))...)
	line = append(line, ',')
	line = append(line, conv.Utoa(num[:], uint64(len(data)))...)
	line = append(line, ',')
	line = append(line, data...)
	line = append(line, ",-42,11\r\n"...)
	deliver := func() {
		for _, p := range dst {
			p.inject(line)
		}
	}
	if delay > 0 {
		time.AfterFunc(delay, deliver)
		return
	}
	deliver()
}

type AirPort struct {
	air *Air

	mu   sync.Mutex
	addr uint16
	tx   []byte
	rx   []byte
	rd   chan struct{}
}

func (p *AirPort) address() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

func (p *AirPort) inject(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, b...)
	p.mu.Unlock()
	select {
	case p.rd <- struct{}{}:
	default:
	}
}

// Write accepts AT command bytes; complete lines are executed.
func (p *AirPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.tx = append(p.tx, b...)
	var lines [][]byte
	for {
		i := indexByte(p.tx, '\n')
		if i < 0 {
			break
		}
		line := trimCR(p.tx[:i])
		lines = append(lines, append([]byte(nil), line...))
		p.tx = p.tx[i+1:]
	}
	p.mu.Unlock()
	for _, l := range lines {
		p.exec(l)
	}
	return len(b), nil
}

func (p *AirPort) exec(line []byte) {
	switch {
	case hasPrefix(line, "AT+ADDRESS="):
		n, ok := conv.Atoi(line[len("AT+ADDRESS="):])
		if !ok || n < 0 || n > 0xFFFF {
			p.inject([]byte("+ERR=4\r\n"))
			return
		}
		p.mu.Lock()
		p.addr = uint16(n)
		p.mu.Unlock()
	case hasPrefix(line, "AT+SEND="):
		to, rest, ok := field(line[len("AT+SEND="):])
		if !ok {
			p.inject([]byte("+ERR=2\r\n"))
			return
		}
		ln, data, ok := field(rest)
		addr, ok1 := conv.Atoi(to)
		n, ok2 := conv.Atoi(ln)
		if !ok || !ok1 || !ok2 || n != len(data) || addr < 0 || addr > 0xFFFF {
			p.inject([]byte("+ERR=5\r\n"))
			return
		}
		p.inject([]byte("+OK\r\n"))
		p.air.transmit(p, uint16(addr), data)
		return
	case hasPrefix(line, "AT"):
	default:
		p.inject([]byte("+ERR=1\r\n"))
		return
	}
	p.inject([]byte("+OK\r\n"))
}

func (p *AirPort) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.rx) > 0 {
			n := copy(b, p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		select {
		case <-p.rd:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
