package atradio

import (
	"context"
	"sync/atomic"

	"handset-go/x/logx"
)

// Handler executes one pin operation. ok=false sends a failure reply.
type Handler func(op Op, pin uint8, value int) (result int, ok bool)

// Responder is the peer side: it serves requests arriving over the radio and
// answers the sender.
type Responder struct {
	m      *Modem
	h      Handler
	log    logx.Logger
	served atomic.Uint32
}

func NewResponder(port Port, h Handler, log logx.Logger) *Responder {
	r := &Responder{h: h, log: logx.Or(log)}
	r.m = NewModem(port, r.onFrame, log)
	return r
}

func (r *Responder) Configure(ctx context.Context, addr uint16, network uint8) error {
	return r.m.Configure(ctx, addr, network)
}

func (r *Responder) Start(ctx context.Context) { r.m.Start(ctx) }

func (r *Responder) Served() uint32 { return r.served.Load() }

func (r *Responder) onFrame(f Frame) {
	req, ok := ParseRequest(f.Data)
	if !ok {
		r.log.Debugf("bad request %q from %d", f.Data, f.From)
		return
	}
	v, ok := r.h(req.Op, req.Pin, req.Value)
	var buf [16]byte
	if err := r.m.Send(f.From, AppendReply(buf[:0], Reply{Seq: req.Seq, Value: v, OK: ok})); err != nil {
		r.log.Warnf("reply to %d: %v", f.From, err)
		return
	}
	r.served.Add(1)
}
