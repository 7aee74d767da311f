// Package atradio drives RYLR896-class LoRa modules over their AT command
// UART and carries a small request/reply protocol on top.
//
//	AT+ADDRESS=<addr>                        set own address
//	AT+NETWORKID=<id>                        radio network
//	AT+SEND=<addr>,<len>,<data>              transmit
//	+RCV=<addr>,<len>,<data>,<rssi>,<snr>    receive
//	+OK / +ERR=<n>                           command acknowledgement
package atradio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"handset-go/errcode"
	"handset-go/x/conv"
	"handset-go/x/logx"
	"handset-go/x/timex"
)

// Port is the UART the module is attached to.
type Port interface {
	Write(p []byte) (int, error)
	// RecvSomeContext blocks until at least one byte is available or ctx
	// ends.
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

const (
	MaxPayload = 240
	maxLine    = 16 + MaxPayload + 16

	DefaultIdleFlush  = 500 * time.Millisecond
	recvSlice         = 250 * time.Millisecond
	defaultCmdTimeout = time.Second
)

// Frame is one received transmission.
type Frame struct {
	From uint16
	Data []byte
	RSSI int
	SNR  int
}

type ModemStats struct {
	Frames    uint32
	Malformed uint32
	Errors    uint32 // +ERR acknowledgements
}

// Modem owns the UART: one reader goroutine splits lines and hands frames
// to onFrame. Writes are serialised.
type Modem struct {
	port    Port
	onFrame func(Frame)
	log     logx.Logger

	wmu sync.Mutex
	ack chan error

	frames    atomic.Uint32
	malformed atomic.Uint32
	errs      atomic.Uint32
}

func NewModem(port Port, onFrame func(Frame), log logx.Logger) *Modem {
	return &Modem{port: port, onFrame: onFrame, log: logx.Or(log), ack: make(chan error, 1)}
}

func (m *Modem) Stats() ModemStats {
	return ModemStats{Frames: m.frames.Load(), Malformed: m.malformed.Load(), Errors: m.errs.Load()}
}

// Configure sets the module address and, when non-zero, the network id.
func (m *Modem) Configure(ctx context.Context, addr uint16, network uint8) error {
	var buf [24]byte
	var num [6]byte
	cmd := append(buf[:0], "AT+ADDRESS="...)
	cmd = append(cmd, conv.Utoa(num[:], uint64(addr))...)
	if err := m.Command(ctx, cmd); err != nil {
		return err
	}
	if network == 0 {
		return nil
	}
	cmd = append(buf[:0], "AT+NETWORKID="...)
	cmd = append(cmd, conv.Utoa(num[:], uint64(network))...)
	return m.Command(ctx, cmd)
}

// Command writes an AT command and waits for its acknowledgement.
func (m *Modem) Command(ctx context.Context, cmd []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCmdTimeout)
		defer cancel()
	}
	select {
	case <-m.ack: // stale ack from an earlier Send
	default:
	}
	if err := m.writeLine(cmd); err != nil {
		return err
	}
	select {
	case err := <-m.ack:
		return err
	case <-ctx.Done():
		return errcode.Wrap(errcode.Timeout, "atradio.command", ctx.Err())
	}
}

// Send transmits data to addr without waiting for the acknowledgement.
func (m *Modem) Send(to uint16, data []byte) error {
	if len(data) > MaxPayload {
		return &errcode.E{C: errcode.InvalidParams, Op: "atradio.send", Msg: "payload too long"}
	}
	var num [8]byte
	line := make([]byte, 0, 24+len(data))
	line = append(line, "AT+SEND="...)
	line = append(line, conv.Utoa(num[:], uint64(to))...)
	line = append(line, ',')
	line = append(line, conv.Utoa(num[:], uint64(len(data)))...)
	line = append(line, ',')
	line = append(line, data...)
	return m.writeLine(line)
}

func (m *Modem) writeLine(b []byte) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	if _, err := m.port.Write(b); err != nil {
		return errcode.Wrap(errcode.NoLink, "atradio.write", err)
	}
	if _, err := m.port.Write([]byte("\r\n")); err != nil {
		return errcode.Wrap(errcode.NoLink, "atradio.write", err)
	}
	return nil
}

// Start runs the reader until ctx ends.
func (m *Modem) Start(ctx context.Context) {
	go m.read(ctx)
}

func (m *Modem) read(ctx context.Context) {
	buf := make([]byte, 64)
	line := make([]byte, 0, maxLine)
	var lastByte time.Time

	for {
		if ctx.Err() != nil {
			return
		}
		// Bound the blocking wait to assist shutdown.
		rctx, cancel := context.WithTimeout(ctx, recvSlice)
		n, _ := m.port.RecvSomeContext(rctx, buf)
		cancel()
		now := time.Now()
		if n <= 0 {
			if len(line) > 0 && timex.Due(now, lastByte, DefaultIdleFlush) {
				m.malformed.Add(1)
				line = line[:0]
			}
			continue
		}
		lastByte = now
		for _, b := range buf[:n] {
			switch b {
			case '\n':
				m.dispatch(line)
				line = line[:0]
			case '\r':
			default:
				if len(line) < maxLine {
					line = append(line, b)
				}
			}
		}
	}
}

func (m *Modem) dispatch(line []byte) {
	switch {
	case len(line) == 0:
	case hasPrefix(line, "+RCV="):
		f, ok := parseRCV(line[len("+RCV="):])
		if !ok {
			m.malformed.Add(1)
			m.log.Debugf("malformed %q", line)
			return
		}
		m.frames.Add(1)
		if m.onFrame != nil {
			m.onFrame(f)
		}
	case hasPrefix(line, "+OK"):
		m.signal(nil)
	case hasPrefix(line, "+ERR"):
		m.errs.Add(1)
		m.signal(&errcode.E{C: errcode.CommFailed, Op: "atradio", Msg: string(line)})
	default:
		m.log.Debugf("ignored %q", line)
	}
}

func (m *Modem) signal(err error) {
	select {
	case m.ack <- err:
	default:
	}
}

func hasPrefix(b []byte, p string) bool {
	return len(b) >= len(p) && string(b[:len(p)]) == p
}

// parseRCV parses "<addr>,<len>,<data>,<rssi>,<snr>". The data field may
// itself contain commas; its length field decides where it ends.
func parseRCV(b []byte) (Frame, bool) {
	var f Frame
	addr, rest, ok := field(b)
	if !ok {
		return f, false
	}
	a, ok := conv.Atoi(addr)
	if !ok || a < 0 || a > 0xFFFF {
		return f, false
	}
	ln, rest, ok := field(rest)
	if !ok {
		return f, false
	}
	n, ok := conv.Atoi(ln)
	if !ok || n < 0 || n > len(rest) {
		return f, false
	}
	f.From = uint16(a)
	f.Data = append([]byte(nil), rest[:n]...)
	rest = rest[n:]
	if len(rest) == 0 {
		return f, true // link quality is optional
	}
	if rest[0] != ',' {
		return f, false
	}
	rssi, snr, _ := field(rest[1:])
	f.RSSI, _ = conv.Atoi(rssi)
	f.SNR, _ = conv.Atoi(snr)
	return f, true
}

// field splits at the first comma.
func field(b []byte) (head, rest []byte, ok bool) {
	for i, c := range b {
		if c == ',' {
			return b[:i], b[i+1:], true
		}
	}
	return b, nil, false
}
