package nav

import (
	"context"
	"testing"
	"time"

	"handset-go/services/handset/internal/alarm"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
)

type fakeHW struct {
	digital map[uint8]int
	analog  map[uint8]int
	reads   int
}

func newFakeHW() *fakeHW { return &fakeHW{digital: map[uint8]int{}, analog: map[uint8]int{}} }

func (h *fakeHW) ReadDigital(p uint8) int     { h.reads++; return h.digital[p] }
func (h *fakeHW) ReadAnalog(p uint8) int      { h.reads++; return h.analog[p] }
func (h *fakeHW) WriteDigital(p uint8, v int) { h.digital[p] = v }
func (h *fakeHW) WriteAnalog(p uint8, v int)  { h.analog[p] = v }

// fakeLink answers every request from a per-pin table on the next poll.
type fakeLink struct {
	values  map[uint8]int
	pending map[gateway.Handle]gateway.Request
	next    gateway.Handle
	begun   int
}

func newFakeLink() *fakeLink {
	return &fakeLink{values: map[uint8]int{}, pending: map[gateway.Handle]gateway.Request{}}
}

func (f *fakeLink) SwitchPeer(uint16) error { return nil }
func (f *fakeLink) Call(_ context.Context, r gateway.Request) (int, error) {
	return f.values[r.Pin], nil
}
func (f *fakeLink) Begin(r gateway.Request) (gateway.Handle, error) {
	f.next++
	f.begun++
	f.pending[f.next] = r
	return f.next, nil
}
func (f *fakeLink) Abandon(gateway.Handle) {}
func (f *fakeLink) PollReply(h gateway.Handle) (int, bool) {
	r, ok := f.pending[h]
	if !ok {
		return 0, false
	}
	delete(f.pending, h)
	if r.Op.Write() {
		f.values[r.Pin] = r.Value
		return r.Value, true
	}
	return f.values[r.Pin], true
}

type fakeSaver struct{ saved []int }

func (f *fakeSaver) Save(i int) error { f.saved = append(f.saved, i); return nil }

type fakeIndicator struct{ sounding bool }

func (f *fakeIndicator) Sound(uint16) { f.sounding = true }
func (f *fakeIndicator) Silence()     { f.sounding = false }

var (
	self = catalog.Device{Name: "Handset", Addr: 1}
	pump = catalog.Device{Name: "Pump", Addr: 2}
	t0   = time.Unix(5000, 0)
)

type rig struct {
	cat  *catalog.Catalog
	hw   *fakeHW
	link *fakeLink
	gw   *gateway.Gateway
	al   *alarm.Evaluator
	ind  *fakeIndicator
	st   *fakeSaver
	m    *Machine
	prev input.Event
}

func newRig(specs ...catalog.Spec) *rig {
	r := &rig{
		cat:  catalog.MustNew(self, specs...),
		hw:   newFakeHW(),
		link: newFakeLink(),
		ind:  &fakeIndicator{},
		st:   &fakeSaver{},
	}
	r.gw = gateway.New(r.cat, r.hw, r.link, gateway.Config{}, nil)
	r.al = alarm.New(r.cat, r.ind)
	r.m = New(r.cat, r.gw, r.al, r.st, Timing{}, nil)
	return r
}

func (r *rig) press(ev input.Event, at time.Time) {
	r.m.Press(input.Press{Event: ev, Prev: r.prev, At: at})
	r.prev = ev
}

func (r *rig) main(i int) int { return r.cat.Item(i).Sub(catalog.Main).Value }

func onOff() []catalog.Option {
	return []catalog.Option{{Label: "Off", Value: 0}, {Label: "On", Value: 1}}
}

func TestRepeatAcceleration(t *testing.T) {
	r := newRig(catalog.Spec{Device: self, Label: "Flow", Pin: catalog.P(20), Set: catalog.SubSpec{Flag: true}})
	r.hw.analog[20] = 100
	r.m.Start(t0)

	r.press(input.Right, t0)
	if _, role := r.m.Cursor(); role != catalog.Set {
		t.Fatalf("role = %v, want set", role)
	}
	set := r.cat.Item(0).Sub(catalog.Set)
	if !set.HasValue || set.Value != 100 {
		t.Fatalf("Set not seeded from Main: %+v", *set)
	}
	for k := 0; k < 5; k++ {
		r.press(input.Up, t0)
	}
	if set.Value != 109 {
		t.Fatalf("after 5 ups Set = %d, want 109 (1+1+1+1+5)", set.Value)
	}
	r.press(input.Down, t0)
	if set.Value != 108 {
		t.Fatalf("direction change must reset to step 1: %d", set.Value)
	}
}

func TestAdjustClampsAndEnumeratedWraps(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "Flow", Pin: catalog.P(20), Set: catalog.SubSpec{Flag: true}},
		catalog.Spec{Device: self, Label: "Relay", Pin: catalog.P(2), Options: onOff(), Set: catalog.SubSpec{Flag: true}},
	)
	r.hw.analog[20] = 1021
	r.hw.digital[2] = 7 // matches no option
	r.m.Start(t0)

	r.press(input.Right, t0)
	for k := 0; k < 6; k++ {
		r.press(input.Up, t0)
	}
	if v := r.cat.Item(0).Sub(catalog.Set).Value; v != catalog.ValueMax {
		t.Fatalf("Set = %d, want clamp at %d", v, catalog.ValueMax)
	}

	r.press(input.Left, t0)  // back to main
	r.press(input.Down, t0)  // item 1
	r.press(input.Right, t0) // set, seeded with 7
	r.press(input.Up, t0)    // invalid clamps to Off, then steps to On
	if v := r.cat.Item(1).Sub(catalog.Set).Value; v != 1 {
		t.Fatalf("Set = %d, want On(1)", v)
	}
	r.press(input.Up, t0)
	if v := r.cat.Item(1).Sub(catalog.Set).Value; v != 0 {
		t.Fatalf("Set = %d, want wrap to Off(0)", v)
	}
}

func TestFieldSkipping(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "Level", Pin: catalog.P(20),
			Hi: catalog.SubSpec{Ident: catalog.ID('H')}},
		catalog.Spec{Device: self, Label: "Plain", Pin: catalog.P(21)},
	)
	r.m.Start(t0)

	r.press(input.Right, t0)
	if _, role := r.m.Cursor(); role != catalog.HiAlarm {
		t.Fatalf("Right from main = %v, want hi (set and lo skipped)", role)
	}
	r.press(input.Right, t0)
	if _, role := r.m.Cursor(); role != catalog.Main {
		t.Fatalf("wrap = %v, want main", role)
	}
	r.press(input.Left, t0)
	if _, role := r.m.Cursor(); role != catalog.HiAlarm {
		t.Fatalf("Left from main = %v, want hi", role)
	}

	r.press(input.Left, t0) // main
	r.press(input.Down, t0) // item 1: nothing selectable but main
	r.press(input.Right, t0)
	if i, role := r.m.Cursor(); i != 1 || role != catalog.Main {
		t.Fatalf("cursor = %d/%v, want 1/main", i, role)
	}
}

func TestItemNavigationGetsInvalid(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "A", Pin: catalog.P(20)},
		catalog.Spec{Device: self, Label: "B", Pin: catalog.P(21)},
		catalog.Spec{Device: self, Label: "C", Pin: catalog.P(22)},
	)
	r.hw.analog[22] = 42
	r.m.Start(t0)

	r.press(input.Up, t0) // prev item wraps to 2
	if i, _ := r.m.Cursor(); i != 2 {
		t.Fatalf("item = %d, want 2", i)
	}
	if !r.cat.Item(2).Valid() || r.main(2) != 42 {
		t.Fatal("entering an invalid item must read it")
	}
	reads := r.hw.reads
	r.press(input.Down, t0) // 0, valid from Start
	if r.hw.reads != reads {
		t.Fatal("valid item must not be re-read")
	}
	r.press(input.Select, t0) // commit on main re-reads
	if r.hw.reads != reads+1 {
		t.Fatal("select on main must re-read")
	}
}

func TestCommitAlarmTogglesAndSaves(t *testing.T) {
	r := newRig(catalog.Spec{Device: self, Label: "Level", Pin: catalog.P(20),
		Lo: catalog.SubSpec{Ident: catalog.ID('L')}})
	r.m.Start(t0)

	r.press(input.Right, t0)
	r.press(input.Select, t0)
	if !r.cat.Item(0).Sub(catalog.LoAlarm).Flag {
		t.Fatal("select must arm the alarm")
	}
	r.press(input.Select, t0)
	if r.cat.Item(0).Sub(catalog.LoAlarm).Flag {
		t.Fatal("second select must disarm")
	}
	if len(r.st.saved) != 2 || r.st.saved[0] != 0 {
		t.Fatalf("saved = %v", r.st.saved)
	}
	r.press(input.Up, t0)
	if len(r.st.saved) != 2 {
		t.Fatal("value edits persist on commit only")
	}
}

func TestCommitSetRemote(t *testing.T) {
	r := newRig(catalog.Spec{Device: pump, Label: "Power", Pin: catalog.P(3), Options: onOff(),
		Set: catalog.SubSpec{Flag: true}})
	r.link.values[3] = 0
	r.m.Start(t0)
	r.m.Tick(t0)
	if !r.cat.Item(0).Valid() || r.main(0) != 0 {
		t.Fatal("initial read did not resolve")
	}

	r.press(input.Right, t0)
	r.press(input.Up, t0) // On
	r.press(input.Select, t0)

	if _, role := r.m.Cursor(); role != catalog.Main {
		t.Fatalf("role = %v, want main after commit", role)
	}
	if r.cat.Item(0).Valid() {
		t.Fatal("Main must be invalid until re-read")
	}
	if !r.gw.PendingOn(0) {
		t.Fatal("commit must re-read Main")
	}
	// The write went out before the re-read superseded it.
	if r.link.begun != 3 {
		t.Fatalf("requests = %d, want 3 (read, write, read)", r.link.begun)
	}
	r.link.values[3] = 1
	r.m.Tick(t0.Add(time.Second))
	if !r.cat.Item(0).Valid() || r.main(0) != 1 {
		t.Fatalf("Main = %d valid=%v", r.main(0), r.cat.Item(0).Valid())
	}
}

func TestCommitSetLocalAndStatusOnly(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "Out", Pin: catalog.P(20), Set: catalog.SubSpec{Flag: true}},
		catalog.Spec{Device: self, Label: "Mode", Options: onOff(), Set: catalog.SubSpec{Flag: true},
			Hi: catalog.SubSpec{Ident: catalog.ID('M')}},
	)
	r.hw.analog[20] = 10
	r.m.Start(t0)

	r.press(input.Right, t0)
	r.press(input.Up, t0)
	r.press(input.Select, t0)
	if r.hw.analog[20] != 11 || r.main(0) != 11 || !r.cat.Item(0).Valid() {
		t.Fatalf("local commit: hw=%d main=%d", r.hw.analog[20], r.main(0))
	}

	r.press(input.Down, t0)  // item 1, status-only
	r.press(input.Right, t0) // set (unset, Main invalid)
	r.press(input.Up, t0)    // from Off to On
	r.press(input.Select, t0)
	it := r.cat.Item(1)
	if !it.Valid() || r.main(1) != 1 {
		t.Fatalf("status-only commit: main=%d valid=%v", r.main(1), it.Valid())
	}
	if len(r.st.saved) != 1 || r.st.saved[0] != 1 {
		t.Fatalf("status-only commit must save its record: %v", r.st.saved)
	}
}

func TestIdleIterationVisitsAlarmItems(t *testing.T) {
	specs := make([]catalog.Spec, 6)
	for i := range specs {
		specs[i] = catalog.Spec{Device: self, Label: "I", Pin: catalog.P(uint8(20 + i))}
	}
	for _, i := range []int{1, 3, 4} {
		specs[i].Lo = catalog.SubSpec{Ident: catalog.ID('x')}
	}
	r := newRig(specs...)
	r.m.Start(t0)

	r.m.Tick(t0.Add(29 * time.Second))
	if r.m.Iterating() {
		t.Fatal("iterating before the idle period")
	}
	now := t0.Add(30 * time.Second)
	r.m.Tick(now)
	if !r.m.Iterating() {
		t.Fatal("not iterating after the idle period")
	}

	var visited []int
	for k := 0; k < 6; k++ {
		now = now.Add(5 * time.Second)
		r.m.Tick(now)
		i, role := r.m.Cursor()
		if role != catalog.Main {
			t.Fatalf("iteration role = %v", role)
		}
		visited = append(visited, i)
	}
	want := []int{1, 3, 4, 1, 3, 4}
	for k := range want {
		if visited[k] != want[k] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}

	// Steps only happen on the interval.
	r.m.Tick(now.Add(4 * time.Second))
	if i, _ := r.m.Cursor(); i != 4 {
		t.Fatalf("stepped early to %d", i)
	}
}

func TestIdleIterationWithoutAlarmItemsStaysPut(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "A", Pin: catalog.P(20), Set: catalog.SubSpec{Flag: true}},
		catalog.Spec{Device: self, Label: "B", Pin: catalog.P(21)},
	)
	r.m.Start(t0)
	r.press(input.Down, t0)
	r.press(input.Up, t0)
	r.press(input.Right, t0) // on Set of item 0
	reads := r.hw.reads

	now := t0
	for k := 0; k < 20; k++ {
		now = now.Add(5 * time.Second)
		r.m.Tick(now)
	}
	if i, role := r.m.Cursor(); i != 0 || role != catalog.Main {
		t.Fatalf("cursor = %d/%v, want 0/main", i, role)
	}
	if r.hw.reads != reads {
		t.Fatal("empty scan must not issue reads")
	}
}

func TestPowerScenarioDuringIteration(t *testing.T) {
	r := newRig(
		catalog.Spec{Device: self, Label: "Batt", Pin: catalog.P(26), Transform: catalog.Battery},
		catalog.Spec{Device: pump, Label: "Power", Pin: catalog.P(3), Options: onOff(),
			Hi: catalog.SubSpec{Value: 1, Ident: catalog.ID('P'), Flag: true}},
	)
	r.hw.analog[26] = 700
	r.link.values[3] = 0 // pump reports Off, expected On
	r.m.Start(t0)

	now := t0.Add(30 * time.Second)
	r.m.Tick(now) // enter iteration
	now = now.Add(5 * time.Second)
	r.m.Tick(now) // step to Power, request pending
	if i, _ := r.m.Cursor(); i != 1 {
		t.Fatalf("iteration went to %d, want 1", i)
	}
	now = now.Add(100 * time.Millisecond)
	r.m.Tick(now) // reply resolves
	if !r.al.Active() || !r.ind.sounding {
		t.Fatal("Power Off with expected On must alarm")
	}

	// Alarm holds the cursor.
	r.m.Tick(now.Add(10 * time.Second))
	if i, _ := r.m.Cursor(); i != 1 {
		t.Fatal("iteration must pause while an alarm is active")
	}

	// Any press silences and leaves iteration.
	r.press(input.Select, now.Add(11*time.Second))
	if r.al.Active() || r.ind.sounding || r.m.Iterating() {
		t.Fatal("press must clear the alarm and exit iteration")
	}

	r.link.values[3] = 1
	now = now.Add(11 * time.Second)
	r.m.Tick(now.Add(100 * time.Millisecond)) // resolves the select re-read
	now = now.Add(30 * time.Second)
	r.m.Tick(now)
	for k := 0; k < 2; k++ {
		now = now.Add(5 * time.Second)
		r.m.Tick(now)
		r.m.Tick(now.Add(100 * time.Millisecond))
	}
	if r.al.Active() {
		t.Fatal("Power On matches expectation: no alarm")
	}
}

func TestPressCancelsPending(t *testing.T) {
	r := newRig(catalog.Spec{Device: pump, Label: "Power", Pin: catalog.P(3)})
	r.m.Start(t0)
	if !r.gw.PendingOn(0) {
		t.Fatal("Start must issue a read")
	}
	r.press(input.Left, t0)
	if r.gw.State() != gateway.Idle {
		t.Fatalf("state = %v, want idle", r.gw.State())
	}
}
