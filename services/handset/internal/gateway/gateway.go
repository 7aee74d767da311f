// Package gateway resolves item reads and writes to local hardware or to a
// remote peer, and tracks the single outstanding remote request.
package gateway

import (
	"context"
	"errors"
	"time"

	"handset-go/errcode"
	"handset-go/services/handset/internal/catalog"
	"handset-go/x/logx"
)

// ---- Contracts ----

type Op uint8

const (
	ReadDigital Op = iota
	ReadAnalog
	WriteDigital
	WriteAnalog
)

func (o Op) Write() bool { return o == WriteDigital || o == WriteAnalog }

func (o Op) String() string {
	switch o {
	case ReadDigital:
		return "RD"
	case ReadAnalog:
		return "RA"
	case WriteDigital:
		return "WD"
	case WriteAnalog:
		return "WA"
	}
	return "??"
}

type Request struct {
	Peer  uint16
	Op    Op
	Pin   uint8
	Value int // writes only
}

// Handle identifies one non-blocking request. Zero is never a live handle.
type Handle uint8

// Link is the remote request/response transport.
type Link interface {
	SwitchPeer(peer uint16) error
	// Call blocks until a reply or ctx ends.
	Call(ctx context.Context, req Request) (int, error)
	Begin(req Request) (Handle, error)
	// PollReply reports the reply for h once it has arrived. A negative
	// value is a failure reported by the peer.
	PollReply(h Handle) (int, bool)
	// Abandon forgets h; a reply that still arrives for it is late.
	Abandon(h Handle)
}

// Hardware is this unit's own pins.
type Hardware interface {
	ReadDigital(pin uint8) int
	ReadAnalog(pin uint8) int
	WriteDigital(pin uint8, v int)
	WriteAnalog(pin uint8, v int)
}

// ---- Configuration ----

type Mode uint8

const (
	NonBlocking Mode = iota
	Blocking
)

const (
	DefaultTimeout    = 3 * time.Second
	DefaultAnalogBase = 14
)

type Config struct {
	Mode       Mode
	Timeout    time.Duration
	AnalogBase uint8 // pins at or above are analog
}

// ---- Request state ----

type State uint8

const (
	Idle State = iota
	Pending
	Resolved
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result describes a request that finished on this tick.
type Result struct {
	Item  int
	State State
	Write bool
	Value int
}

type Stats struct {
	Requests  uint32
	Replies   uint32
	Timeouts  uint32
	Failures  uint32
	Abandoned uint32
}

type Gateway struct {
	cat  *catalog.Catalog
	hw   Hardware
	link Link
	cfg  Config
	log  logx.Logger

	peer     uint16
	havePeer bool

	state    State
	handle   Handle
	item     int
	op       Op
	deadline time.Time

	errItem int // last item whose read failed, -1 when none
	stats   Stats
}

func New(cat *catalog.Catalog, hw Hardware, link Link, cfg Config, log logx.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AnalogBase == 0 {
		cfg.AnalogBase = DefaultAnalogBase
	}
	return &Gateway{cat: cat, hw: hw, link: link, cfg: cfg, log: logx.Or(log), errItem: -1}
}

func (g *Gateway) State() State { return g.state }
func (g *Gateway) Stats() Stats { return g.stats }

// Peer returns the cached remote peer, if one has been targeted.
func (g *Gateway) Peer() (uint16, bool) { return g.peer, g.havePeer }

// PendingOn reports whether a request for item i is outstanding.
func (g *Gateway) PendingOn(i int) bool { return g.state == Pending && g.item == i }

// FailedOn reports whether the last read of item i timed out or failed.
func (g *Gateway) FailedOn(i int) bool { return g.errItem == i }

// Cancel drops the outstanding request here and at the link. Its reply, if
// one ever arrives, is ignored.
func (g *Gateway) Cancel() {
	if g.state == Pending {
		g.stats.Abandoned++
		g.log.Debugf("abandon handle %d item %d", g.handle, g.item)
		g.link.Abandon(g.handle)
	}
	g.state = Idle
	g.handle = 0
}

// Get reads item i into its Main value. It returns nil when the value was
// read immediately, errcode.CommPending when a non-blocking request was
// issued, and another error when the read failed. Status-only items are left
// untouched.
func (g *Gateway) Get(i int, now time.Time) error {
	it, err := g.cat.Lookup(i)
	if err != nil {
		return err
	}
	pin, ok := it.Pin.Num()
	if !ok {
		return nil
	}
	op := ReadDigital
	if pin >= g.cfg.AnalogBase {
		op = ReadAnalog
	}
	return g.do(i, it, Request{Op: op, Pin: pin}, now)
}

// Set writes v to item i's pin. Status-only items return NotSettable.
func (g *Gateway) Set(i int, v int, now time.Time) error {
	it, err := g.cat.Lookup(i)
	if err != nil {
		return err
	}
	pin, ok := it.Pin.Num()
	if !ok {
		return errcode.NotSettable
	}
	op := WriteDigital
	if pin >= g.cfg.AnalogBase {
		op = WriteAnalog
	}
	return g.do(i, it, Request{Op: op, Pin: pin, Value: v}, now)
}

func (g *Gateway) do(i int, it *catalog.Item, req Request, now time.Time) error {
	g.Cancel()
	if !req.Op.Write() && g.errItem == i {
		g.errItem = -1
	}

	if g.cat.Local(i) {
		g.local(i, req)
		return nil
	}

	req.Peer = it.Device.Addr
	if err := g.switchPeer(req.Peer); err != nil {
		g.finish(i, req.Op, Failed, 0)
		return err
	}
	g.stats.Requests++

	if g.cfg.Mode == Blocking {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Timeout)
		v, err := g.link.Call(ctx, req)
		cancel()
		switch {
		case err == nil && v >= 0:
			g.finish(i, req.Op, Resolved, v)
			return nil
		case err == nil || !isTimeout(err):
			g.finish(i, req.Op, Failed, 0)
			return errcode.Wrap(errcode.CommFailed, "gateway."+req.Op.String(), err)
		default:
			g.finish(i, req.Op, TimedOut, 0)
			return errcode.Wrap(errcode.CommTimeout, "gateway."+req.Op.String(), err)
		}
	}

	h, err := g.link.Begin(req)
	if err != nil {
		g.finish(i, req.Op, Failed, 0)
		return errcode.Wrap(errcode.CommFailed, "gateway.begin", err)
	}
	g.state = Pending
	g.handle = h
	g.item = i
	g.op = req.Op
	g.deadline = now.Add(g.cfg.Timeout)
	return errcode.CommPending
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errcode.CommTimeout) || errors.Is(err, errcode.Timeout)
}

func (g *Gateway) local(i int, req Request) {
	switch req.Op {
	case ReadDigital:
		g.finish(i, req.Op, Resolved, g.hw.ReadDigital(req.Pin))
	case ReadAnalog:
		g.finish(i, req.Op, Resolved, g.hw.ReadAnalog(req.Pin))
	case WriteDigital:
		g.hw.WriteDigital(req.Pin, req.Value)
	case WriteAnalog:
		g.hw.WriteAnalog(req.Pin, req.Value)
	}
}

func (g *Gateway) switchPeer(peer uint16) error {
	if g.havePeer && g.peer == peer {
		return nil
	}
	if err := g.link.SwitchPeer(peer); err != nil {
		g.havePeer = false
		return errcode.Wrap(errcode.UnknownPeer, "gateway.switch", err)
	}
	g.peer, g.havePeer = peer, true
	return nil
}

// finish applies the outcome of a request to the catalog. Reads that do not
// resolve invalidate Main.
func (g *Gateway) finish(i int, op Op, st State, v int) {
	it := g.cat.Item(i)
	switch st {
	case Resolved:
		if !g.cat.Local(i) {
			g.stats.Replies++
		}
		if !op.Write() {
			it.Sub(catalog.Main).Value = v
			it.SetValid(true)
		}
	case TimedOut:
		g.stats.Timeouts++
		g.log.Warnf("%s item %d timed out", op, i)
	case Failed:
		g.stats.Failures++
		g.log.Warnf("%s item %d failed", op, i)
	}
	if st == TimedOut || st == Failed {
		if !op.Write() {
			it.SetValid(false)
			g.errItem = i
		}
	}
	g.state = st
}

// Tick advances the outstanding request: it polls for the reply and expires
// it at the deadline. It reports a result only on the tick the request
// finishes.
func (g *Gateway) Tick(now time.Time) (Result, bool) {
	if g.state != Pending {
		return Result{}, false
	}
	res := Result{Item: g.item, Write: g.op.Write()}
	if v, ok := g.link.PollReply(g.handle); ok {
		g.handle = 0
		if v < 0 {
			g.finish(g.item, g.op, Failed, 0)
		} else {
			g.finish(g.item, g.op, Resolved, v)
			res.Value = v
		}
		res.State = g.state
		return res, true
	}
	if now.Before(g.deadline) {
		return Result{}, false
	}
	g.link.Abandon(g.handle)
	g.handle = 0
	g.finish(g.item, g.op, TimedOut, 0)
	res.State = TimedOut
	return res, true
}
