// Package handset runs the irrigation handset: keypad in, menu state and
// remote pin access in the middle, a 16x2 frame and alarm tone out.
package handset

import (
	"context"
	"time"

	"handset-go/bus"
	"handset-go/drivers/atradio"
	"handset-go/services/handset/config"
	"handset-go/services/handset/internal/alarm"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/display"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
	"handset-go/services/handset/internal/nav"
	"handset-go/services/handset/internal/store"
	"handset-go/services/lcd"
	"handset-go/types"
	"handset-go/x/logx"
)

var (
	TopicFrame = lcd.TopicFrame
	TopicAlarm = bus.T("alarm", "state")
	TopicComm  = bus.T("comm", "status")
	TopicState = bus.T("handset", "state")
)

type Service struct {
	cfg   config.Config
	board Board
	conn  *bus.Connection
	log   logx.Logger

	cat   *catalog.Catalog
	store *store.Store
	radio *atradio.Client
	gw    *gateway.Gateway
	alarm *alarm.Evaluator
	nav   *nav.Machine

	src     input.Source
	irq     *input.IRQ
	stopIRQ func()

	radioErr error

	frame     types.Frame
	haveFrame bool
	alarmSt   types.AlarmState
	haveAlarm bool
	comm      types.CommStatus
	haveComm  bool
}

// New wires the handset from a validated configuration and a board.
func New(cfg config.Config, b Board, conn *bus.Connection, log logx.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	log = logx.Or(log)
	s := &Service{cfg: cfg, board: b, conn: conn, log: log, cat: cat}
	s.store = store.New(b.EEPROM, cat)
	s.radio = atradio.NewClient(b.Radio, log)
	s.gw = gateway.New(cat, b.Pins, radioLink{s.radio}, cfg.GatewayConfig(), log)
	s.alarm = alarm.New(cat, b.Buzzer)
	s.nav = nav.New(cat, s.gw, s.alarm, s.store, cfg.NavTiming(), log)

	if cfg.Input == config.InputIRQ && b.KeyIRQ != nil {
		s.irq = input.NewIRQ(b.KeyIRQ, b.Keypad, cfg.Timing.Debounce)
		s.src = s.irq
	} else {
		s.src = input.NewPoller(b.Keypad, cfg.Timing.Debounce)
	}
	return s, nil
}

// Start brings up the radio, loads persisted alarm settings and renders the
// first frame. Radio trouble is reported, not fatal.
func (s *Service) Start(ctx context.Context, now time.Time) {
	s.radio.Start(ctx)
	if err := s.radio.Configure(ctx, s.cfg.Self.Addr, s.cfg.Network); err != nil {
		s.radioErr = err
		s.log.Warnf("radio configure: %v", err)
	}

	s.hydrate()

	if s.irq != nil {
		stop, err := s.irq.Start()
		if err != nil {
			s.log.Warnf("key irq: %v, polling instead", err)
			s.irq = nil
			s.src = input.NewPoller(s.board.Keypad, s.cfg.Timing.Debounce)
		} else {
			s.stopIRQ = stop
		}
	}

	s.nav.Start(now)
	s.publishState("ready", "started", now)
	s.publish(now)
}

// hydrate loads the stored record of every item the idle scan visits and of
// every status-only item. Where no record was ever written the configured
// thresholds stay in memory: a pinned item gets them saved, a status-only
// item does not, since a written status byte would declare its Main valid
// on the next boot.
func (s *Service) hydrate() {
	for i := 0; i < s.cat.Len(); i++ {
		pinned := s.cat.Item(i).Pin.Valid()
		if !s.cat.HasAlarmIdent(i) && pinned {
			continue
		}
		if ok, err := s.store.Written(i); err == nil && !ok {
			if !pinned {
				s.log.Infof("item %d: no stored record, keeping configured alarms", i)
				continue
			}
			s.log.Infof("item %d: no stored alarms, writing defaults", i)
			if err := s.store.Save(i); err != nil {
				s.log.Warnf("save item %d: %v", i, err)
			}
			continue
		}
		if err := s.store.Load(i); err != nil {
			s.log.Warnf("load item %d: %v", i, err)
		}
	}
}

// Step runs one control-loop pass.
func (s *Service) Step(now time.Time) {
	if p, ok := s.src.Next(now); ok {
		s.log.Debugf("press %s (prev %s)", p.Event, p.Prev)
		s.nav.Press(p)
	}
	s.nav.Tick(now)
	s.publish(now)
}

// Stop silences the indicator and releases the key interrupt.
func (s *Service) Stop(now time.Time) {
	if s.stopIRQ != nil {
		s.stopIRQ()
		s.stopIRQ = nil
	}
	s.gw.Cancel()
	s.alarm.Clear()
	s.publish(now)
	s.publishState("stopped", "context_cancelled", now)
}

// Run drives the loop at the configured tick until ctx ends.
func (s *Service) Run(ctx context.Context) {
	s.Start(ctx, time.Now())
	tick := time.NewTicker(s.cfg.Timing.Tick)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop(time.Now())
			return
		case t := <-tick.C:
			s.Step(t)
		}
	}
}

// Run builds a handset and drives it until ctx ends.
func Run(ctx context.Context, conn *bus.Connection, cfg config.Config, b Board, log logx.Logger) error {
	s, err := New(cfg, b, conn, log)
	if err != nil {
		return err
	}
	s.Run(ctx)
	return nil
}

// ---- Accessors (tests, simulator) ----

func (s *Service) Cursor() (int, catalog.Role) { return s.nav.Cursor() }
func (s *Service) Iterating() bool             { return s.nav.Iterating() }
func (s *Service) Frame() types.Frame          { return s.frame }
func (s *Service) Comm() types.CommStatus      { return s.comm }
func (s *Service) Alarm() types.AlarmState     { return s.alarmSt }

// ---- Publishing ----

func (s *Service) publishState(level, status string, now time.Time) {
	if s.conn == nil {
		return
	}
	st := types.ServiceState{Level: level, Status: status, TS: now.UnixMilli()}
	s.conn.Publish(s.conn.NewMessage(TopicState, st, true))
}

// publish renders the cursor item and republishes whatever changed.
func (s *Service) publish(now time.Time) {
	item, role := s.nav.Cursor()
	src, srcRole, active := s.alarm.Source()

	f := display.Render(display.View{
		Cat:     s.cat,
		Item:    item,
		Role:    role,
		Pending: s.gw.PendingOn(item),
		Failed:  s.gw.FailedOn(item),
		Alarm:   active && src == item,
	})
	if !s.haveFrame || f != s.frame {
		s.frame, s.haveFrame = f, true
		s.send(TopicFrame, f)
	}

	al := types.AlarmState{Active: active}
	if active {
		it := s.cat.Item(src)
		al.Item = src
		al.Label = it.Label
		al.Role = srcRole.String()
		al.ToneHz = it.Sub(srcRole).Tone
	}
	if !s.haveAlarm || !sameAlarm(al, s.alarmSt) {
		al.TS = now.UnixMilli()
		s.alarmSt, s.haveAlarm = al, true
		s.send(TopicAlarm, al)
	}

	cs := s.commStatus(item)
	if !s.haveComm || !sameComm(cs, s.comm) {
		cs.TS = now.UnixMilli()
		s.comm, s.haveComm = cs, true
		s.send(TopicComm, cs)
	}
}

func (s *Service) send(t bus.Topic, payload any) {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(t, payload, true))
}

func (s *Service) commStatus(item int) types.CommStatus {
	st := s.gw.Stats()
	rs := s.radio.Stats()
	peer, _ := s.gw.Peer()
	cs := types.CommStatus{
		Link:      types.LinkUp,
		State:     s.gw.State().String(),
		Item:      item,
		Peer:      peer,
		Requests:  st.Requests,
		Replies:   st.Replies,
		Timeouts:  st.Timeouts,
		Failures:  st.Failures,
		Abandoned: st.Abandoned,
		Late:      rs.Late,
	}
	switch {
	case s.radioErr != nil:
		cs.Link = types.LinkDown
		cs.Error = s.radioErr.Error()
	case s.gw.State() == gateway.TimedOut || s.gw.State() == gateway.Failed:
		cs.Link = types.LinkDegraded
		if st.Replies == 0 {
			cs.Link = types.LinkDown
		}
	}
	return cs
}

func sameAlarm(a, b types.AlarmState) bool {
	a.TS, b.TS = 0, 0
	return a == b
}

func sameComm(a, b types.CommStatus) bool {
	a.TS, b.TS = 0, 0
	return a == b
}
