package main

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

const readSlice = 50 * time.Millisecond

// serialPort gives a host serial device the blocking-receive shape the radio
// driver expects.
type serialPort struct {
	serial.Port
}

func openSerial(name string, baud int) (*serialPort, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readSlice); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &serialPort{Port: p}, nil
}

func (s *serialPort) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	for {
		n, err := s.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}
