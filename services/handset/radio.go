package handset

import (
	"context"

	"handset-go/drivers/atradio"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/gateway"
	"handset-go/x/logx"
)

// radioLink carries gateway requests over the AT radio client.
type radioLink struct{ c *atradio.Client }

func radioOp(op gateway.Op) atradio.Op {
	switch op {
	case gateway.ReadAnalog:
		return atradio.ReadAnalog
	case gateway.WriteDigital:
		return atradio.WriteDigital
	case gateway.WriteAnalog:
		return atradio.WriteAnalog
	}
	return atradio.ReadDigital
}

func (l radioLink) SwitchPeer(peer uint16) error {
	l.c.SetPeer(peer)
	return nil
}

func (l radioLink) Call(ctx context.Context, req gateway.Request) (int, error) {
	return l.c.Call(ctx, radioOp(req.Op), req.Pin, req.Value)
}

func (l radioLink) Begin(req gateway.Request) (gateway.Handle, error) {
	seq, err := l.c.Begin(radioOp(req.Op), req.Pin, req.Value)
	return gateway.Handle(seq), err
}

func (l radioLink) PollReply(h gateway.Handle) (int, bool) {
	return l.c.Poll(uint8(h))
}

func (l radioLink) Abandon(h gateway.Handle) { l.c.Abandon(uint8(h)) }

// PeerHandler serves radio requests against a pin bank. Writes echo the
// value; values outside the 10-bit range are refused.
func PeerHandler(hw Hardware) atradio.Handler {
	return func(op atradio.Op, pin uint8, v int) (int, bool) {
		switch op {
		case atradio.ReadDigital:
			return hw.ReadDigital(pin), true
		case atradio.ReadAnalog:
			return hw.ReadAnalog(pin), true
		}
		if v < catalog.ValueMin || v > catalog.ValueMax {
			return 0, false
		}
		switch op {
		case atradio.WriteDigital:
			hw.WriteDigital(pin, v)
		case atradio.WriteAnalog:
			hw.WriteAnalog(pin, v)
		default:
			return 0, false
		}
		return v, true
	}
}

// ServePeer runs a remote unit: it answers requests addressed to addr with
// reads and writes on hw until ctx ends.
func ServePeer(ctx context.Context, port RadioPort, addr uint16, network uint8, hw Hardware, log logx.Logger) (*atradio.Responder, error) {
	r := atradio.NewResponder(port, PeerHandler(hw), log)
	r.Start(ctx)
	if err := r.Configure(ctx, addr, network); err != nil {
		return nil, err
	}
	return r, nil
}
