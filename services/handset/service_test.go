package handset

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"handset-go/bus"
	"handset-go/drivers/atradio"
	"handset-go/services/handset/config"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/platform"
	"handset-go/services/handset/internal/store"
	"handset-go/types"
)

type keypad struct{ v atomic.Uint32 }

func newKeypad() *keypad {
	k := &keypad{}
	k.v.Store(uint32(KeySample("")))
	return k
}

func (k *keypad) Sample() uint16   { return uint16(k.v.Load()) }
func (k *keypad) press(key string) { k.v.Store(uint32(KeySample(key))) }
func (k *keypad) release()         { k.v.Store(uint32(KeySample(""))) }

type rig struct {
	t      *testing.T
	ctx    context.Context
	air    *atradio.Air
	pump   *PinMap
	tank   *PinMap
	local  *PinMap
	keys   *keypad
	mem    *store.Memory
	buzzer *platform.Recorder
	bus    *bus.Bus
	s      *Service
	now    time.Time
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timing.IdleAfter = time.Second
	cfg.Timing.IterateEvery = 200 * time.Millisecond
	cfg.Timing.ReplyTimeout = 5 * time.Second
	return cfg
}

// newRig starts the Pump and Tank peers on a shared air and builds an
// unstarted handset. withPeers=false leaves the air empty.
func newRig(t *testing.T, cfg config.Config, withPeers bool) *rig {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := &rig{
		t:      t,
		ctx:    ctx,
		air:    atradio.NewAir(),
		pump:   NewPinMap(),
		tank:   NewPinMap(),
		local:  NewPinMap(),
		keys:   newKeypad(),
		mem:    store.NewMemory(256, 0xFF),
		buzzer: &platform.Recorder{},
		bus:    bus.NewBus(8),
		now:    time.Unix(1000, 0),
	}
	r.pump.Set(3, 1)    // Power on
	r.pump.Set(26, 197) // 21 psi
	r.tank.Set(27, 512)
	r.local.Set(28, 880)

	if withPeers {
		if _, err := ServePeer(ctx, r.air.Port(), 2, cfg.Network, r.pump, nil); err != nil {
			t.Fatalf("pump peer: %v", err)
		}
		if _, err := ServePeer(ctx, r.air.Port(), 3, cfg.Network, r.tank, nil); err != nil {
			t.Fatalf("tank peer: %v", err)
		}
	}

	b := Board{
		Pins:   r.local,
		Keypad: r.keys,
		EEPROM: r.mem,
		Buzzer: r.buzzer,
		Radio:  r.air.Port(),
	}
	s, err := New(cfg, b, r.bus.NewConnection("handset"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.s = s
	return r
}

func (r *rig) start() {
	r.s.Start(r.ctx, r.now)
}

// step advances fake time by d and runs one pass.
func (r *rig) step(d time.Duration) {
	r.now = r.now.Add(d)
	r.s.Step(r.now)
}

// settle steps in small increments until cond holds, giving radio replies
// real time to arrive.
func (r *rig) settle(cond func() bool, what string) {
	r.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			r.t.Fatalf("timeout waiting for %s; frame %q / %q", what, r.line(0), r.line(1))
		}
		r.step(time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

func (r *rig) line(row int) string {
	f := r.s.Frame()
	return f.Line(row)
}

func (r *rig) click(key string) {
	r.keys.press(key)
	r.step(10 * time.Millisecond)
	r.keys.release()
	r.step(400 * time.Millisecond)
}

func TestStartReadsFirstItemFromPeer(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.start()
	if !strings.Contains(r.line(1), "...") {
		t.Fatalf("first frame should show pending, got %q", r.line(1))
	}
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "On") }, "Power On")
	if !strings.HasPrefix(r.line(0), "Pump") || !strings.HasPrefix(r.line(1), "Power") {
		t.Fatalf("frame = %q / %q", r.line(0), r.line(1))
	}
	cs := r.s.Comm()
	if cs.Link != types.LinkUp || cs.Peer != 2 || cs.Requests != 1 || cs.Replies != 1 {
		t.Fatalf("comm = %+v", cs)
	}
}

func TestPublishesRetainedState(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.start()
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "On") }, "Power On")

	c := r.bus.NewConnection("probe")
	frames := c.Subscribe(TopicFrame)
	state := c.Subscribe(TopicState)
	comm := c.Subscribe(TopicComm)
	alarms := c.Subscribe(TopicAlarm)

	m := <-frames.Channel()
	if f, ok := m.Payload.(types.Frame); !ok || f != r.s.Frame() {
		t.Fatalf("retained frame = %v", m.Payload)
	}
	m = <-state.Channel()
	if st, ok := m.Payload.(types.ServiceState); !ok || st.Level != "ready" {
		t.Fatalf("state = %+v", m.Payload)
	}
	m = <-comm.Channel()
	if cs, ok := m.Payload.(types.CommStatus); !ok || cs.Replies != 1 {
		t.Fatalf("comm = %+v", m.Payload)
	}
	m = <-alarms.Channel()
	if al, ok := m.Payload.(types.AlarmState); !ok || al.Active {
		t.Fatalf("alarm = %+v", m.Payload)
	}

	// Nothing changed: no republish.
	r.step(time.Millisecond)
	select {
	case m := <-frames.Channel():
		t.Fatalf("unchanged frame republished: %v", m.Payload)
	default:
	}

	r.s.Stop(r.now)
	m = <-state.Channel()
	if st := m.Payload.(types.ServiceState); st.Level != "stopped" {
		t.Fatalf("state after stop = %+v", st)
	}
}

func TestTimeoutShowsErrAndLinkDown(t *testing.T) {
	cfg := testConfig()
	cfg.Timing.ReplyTimeout = 500 * time.Millisecond
	r := newRig(t, cfg, false)
	r.start()
	r.step(499 * time.Millisecond)
	if !strings.Contains(r.line(1), "...") {
		t.Fatalf("still pending expected, got %q", r.line(1))
	}
	r.step(time.Millisecond)
	if !strings.HasSuffix(r.line(1), "ERR") {
		t.Fatalf("timeout frame = %q", r.line(1))
	}
	cs := r.s.Comm()
	if cs.Link != types.LinkDown || cs.Timeouts != 1 || cs.State != "timed_out" {
		t.Fatalf("comm = %+v", cs)
	}
}

func TestKeypadNavigatesAndReads(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.start()
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "On") }, "Power On")

	r.click("down")
	if i, role := r.s.Cursor(); i != 1 || role != catalog.Main {
		t.Fatalf("cursor = %d %v", i, role)
	}
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "21psi") }, "pressure")

	// Battery is read locally with no radio traffic.
	reqs := r.s.Comm().Requests
	r.click("down")
	r.click("down")
	r.click("down")
	if !strings.HasPrefix(r.line(0), "Handset") || !strings.HasSuffix(r.line(1), "13.5V") {
		t.Fatalf("battery frame = %q / %q", r.line(0), r.line(1))
	}
	if got := r.s.Comm().Requests - reqs; got != 2 {
		t.Fatalf("remote requests for Level and Valve = %d, want 2", got)
	}
}

func TestRemoteWriteReachesPeer(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.start()
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "On") }, "Power On")

	r.click("right") // SET, seeded from MAIN
	r.click("up")    // wraps On -> Off
	if !strings.HasSuffix(r.line(1), "Off") || r.line(1)[9] != '>' {
		t.Fatalf("set frame = %q", r.line(1))
	}
	r.click("select")
	r.settle(func() bool { return r.pump.Writes(3) == 1 }, "peer write")
	if r.pump.Get(3) != 0 {
		t.Fatal("peer pin not switched off")
	}
}

func TestHydrateProvisionsAndLoads(t *testing.T) {
	cfg := testConfig()
	cfg.Items[1].Lo.Armed = true

	// A record already on the EEPROM for Level wins over the config.
	r := newRig(t, cfg, true)
	pre, err := cfg.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	pre.Item(2).Sub(catalog.LoAlarm).Value = 300
	pre.Item(2).Sub(catalog.LoAlarm).Flag = true
	if err := store.New(r.mem, pre).Save(2); err != nil {
		t.Fatal(err)
	}

	r.start()
	if lo := r.s.cat.Item(1).Sub(catalog.LoAlarm); !lo.Flag || lo.Value != 150 {
		t.Fatalf("pressure lo = %+v", *lo)
	}
	if ok, _ := r.s.store.Written(1); !ok {
		t.Fatal("configured thresholds not provisioned")
	}
	if lo := r.s.cat.Item(2).Sub(catalog.LoAlarm); !lo.Flag || lo.Value != 300 {
		t.Fatalf("level lo = %+v", *lo)
	}
	if r.s.cat.Item(5).Valid() {
		t.Fatal("status item valid without a stored record")
	}
	if !strings.Contains(r.line(0), "lL") {
		t.Fatalf("armed idents missing from %q", r.line(0))
	}
}

func TestHydrateKeepsStatusOnlyAlarmsOnBlankMemory(t *testing.T) {
	cfg := testConfig()
	cfg.Items[5].Hi.Value = 1
	cfg.Items[5].Hi.Armed = true
	r := newRig(t, cfg, true)
	r.start()

	mode := r.s.cat.Item(5)
	if hi := mode.Sub(catalog.HiAlarm); hi.Value != 1 || !hi.Flag {
		t.Fatalf("mode hi = %+v, want configured 1 armed", *hi)
	}
	if mode.Valid() {
		t.Fatal("status item valid without a stored record")
	}
	if ok, _ := r.s.store.Written(5); ok {
		t.Fatal("status item record written during hydrate")
	}
	if lo := r.s.cat.Item(2).Sub(catalog.LoAlarm); lo.Value != 100 {
		t.Fatalf("level lo = %+v", *lo)
	}
}

func TestPressAbandonsInFlightReply(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.air.SetDelay(50 * time.Millisecond)
	r.start()

	// Left from Power's Main lands on its HI alarm field, which issues no
	// request of its own.
	r.click("left")
	if _, role := r.s.Cursor(); role != catalog.HiAlarm {
		t.Fatalf("cursor role = %v", role)
	}
	r.settle(func() bool { return r.s.radio.Stats().Late == 1 }, "late reply")
	r.step(time.Millisecond)

	if st := r.s.radio.Stats(); st.Replies != 0 {
		t.Fatalf("abandoned reply counted as a reply: %+v", st)
	}
	cs := r.s.Comm()
	if cs.Late != 1 || cs.Abandoned != 1 || cs.Replies != 0 {
		t.Fatalf("comm = %+v", cs)
	}
}

func TestIdleIterationRaisesAlarm(t *testing.T) {
	cfg := testConfig()
	cfg.Items[2].Lo.Armed = true
	r := newRig(t, cfg, true)
	r.tank.Set(27, 40) // below the Level threshold of 100
	r.start()
	r.settle(func() bool { return strings.HasSuffix(r.line(1), "On") }, "Power On")

	r.step(time.Second) // idle
	if !r.s.Iterating() {
		t.Fatal("not iterating after idle")
	}
	r.settle(func() bool { return r.s.Alarm().Active }, "alarm")
	al := r.s.Alarm()
	if al.Item != 2 || al.Role != "lo" || al.ToneHz != 660 {
		t.Fatalf("alarm = %+v", al)
	}
	if r.buzzer.Tone() != 660 {
		t.Fatalf("buzzer = %d", r.buzzer.Tone())
	}
	if !strings.HasSuffix(r.line(0), "!") {
		t.Fatalf("alarm marker missing from %q", r.line(0))
	}

	// Iteration holds on the alarm.
	r.step(time.Second)
	if i, _ := r.s.Cursor(); i != 2 {
		t.Fatalf("cursor moved off alarm to %d", i)
	}

	r.click("left")
	if r.s.Alarm().Active || r.buzzer.Tone() != 0 {
		t.Fatal("press should clear the alarm")
	}
}
