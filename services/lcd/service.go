// Package lcd mirrors the handset's rendered frame onto a character display.
package lcd

import (
	"context"
	"time"

	"handset-go/bus"
	"handset-go/types"
	"handset-go/x/logx"
)

var TopicFrame = bus.T("view", "frame")

// Printer is the subset of tinygo's hd44780i2c.Device used here.
type Printer interface {
	SetCursor(x, y uint8)
	Print(data []byte)
}

// DefaultRefresh redraws the last frame even when unchanged, recovering
// a display that glitched or was power-cycled.
const DefaultRefresh = 5 * time.Second

type Service struct {
	P       Printer
	Refresh time.Duration
	Log     logx.Logger

	last  types.Frame
	drawn bool
	draws uint32
}

func New(p Printer, log logx.Logger) *Service {
	return &Service{P: p, Refresh: DefaultRefresh, Log: logx.Or(log)}
}

// Draws is the number of frames written to the printer.
func (s *Service) Draws() uint32 { return s.draws }

func (s *Service) show(f types.Frame, force bool) {
	if s.drawn && !force && f == s.last {
		return
	}
	for row := 0; row < types.FrameRows; row++ {
		s.P.SetCursor(0, uint8(row))
		s.P.Print(f[row][:])
	}
	s.last, s.drawn = f, true
	s.draws++
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(TopicFrame)
	defer conn.Unsubscribe(sub)

	refresh := s.Refresh
	if refresh <= 0 {
		refresh = time.Hour
	}
	tick := time.NewTicker(refresh)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Infof("lcd service stopping")
			return
		case <-tick.C:
			if s.drawn {
				s.show(s.last, true)
			}
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			switch f := msg.Payload.(type) {
			case types.Frame:
				s.show(f, false)
			case *types.Frame:
				s.show(*f, false)
			default:
				s.Log.Warnf("unexpected frame payload %T", msg.Payload)
			}
		}
	}
}

// Start runs the display loop until ctx ends.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
