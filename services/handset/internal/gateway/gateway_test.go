package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"handset-go/errcode"
	"handset-go/services/handset/internal/catalog"
)

// fakeLink records requests and lets tests deliver replies by handle.
type fakeLink struct {
	switches  []uint16
	begun     []Request
	replies   map[Handle]int
	abandoned []Handle
	next      Handle
	callVal   int
	callErr   error
}

func newFakeLink() *fakeLink { return &fakeLink{replies: map[Handle]int{}} }

func (f *fakeLink) SwitchPeer(p uint16) error { f.switches = append(f.switches, p); return nil }
func (f *fakeLink) Call(ctx context.Context, r Request) (int, error) {
	f.begun = append(f.begun, r)
	if f.callErr != nil {
		return -1, f.callErr
	}
	return f.callVal, nil
}
func (f *fakeLink) Begin(r Request) (Handle, error) {
	f.begun = append(f.begun, r)
	f.next++
	return f.next, nil
}
func (f *fakeLink) PollReply(h Handle) (int, bool) {
	v, ok := f.replies[h]
	if ok {
		delete(f.replies, h)
	}
	return v, ok
}
func (f *fakeLink) Abandon(h Handle) { f.abandoned = append(f.abandoned, h) }

type fakeHW struct {
	digital map[uint8]int
	analog  map[uint8]int
}

func newFakeHW() *fakeHW { return &fakeHW{digital: map[uint8]int{}, analog: map[uint8]int{}} }

func (h *fakeHW) ReadDigital(p uint8) int     { return h.digital[p] }
func (h *fakeHW) ReadAnalog(p uint8) int      { return h.analog[p] }
func (h *fakeHW) WriteDigital(p uint8, v int) { h.digital[p] = v }
func (h *fakeHW) WriteAnalog(p uint8, v int)  { h.analog[p] = v }

var (
	self  = catalog.Device{Name: "Handset", Addr: 1}
	pump  = catalog.Device{Name: "Pump", Addr: 2}
	tank  = catalog.Device{Name: "Tank", Addr: 3}
	clock = time.Unix(1000, 0)
)

func newCatalog() *catalog.Catalog {
	return catalog.MustNew(self,
		catalog.Spec{Device: pump, Label: "Power", Pin: catalog.P(3)},
		catalog.Spec{Device: pump, Label: "Press", Pin: catalog.P(15)},
		catalog.Spec{Device: tank, Label: "Level", Pin: catalog.P(16)},
		catalog.Spec{Device: self, Label: "Batt", Pin: catalog.P(26)},
		catalog.Spec{Device: self, Label: "Led", Pin: catalog.P(5)},
		catalog.Spec{Device: self, Label: "Mode"},
	)
}

func TestLocalReadWrite(t *testing.T) {
	cat := newCatalog()
	hw := newFakeHW()
	hw.analog[26] = 600
	link := newFakeLink()
	g := New(cat, hw, link, Config{}, nil)

	if err := g.Get(3, clock); err != nil {
		t.Fatalf("local Get: %v", err)
	}
	if it := cat.Item(3); !it.Valid() || it.Sub(catalog.Main).Value != 600 {
		t.Fatalf("Main = %+v", *it.Sub(catalog.Main))
	}
	if err := g.Set(4, 1, clock); err != nil {
		t.Fatalf("local Set: %v", err)
	}
	if hw.digital[5] != 1 {
		t.Fatal("digital write not applied")
	}
	if len(link.begun) != 0 || len(link.switches) != 0 {
		t.Fatal("local items must not touch the link")
	}
	if err := g.Set(5, 1, clock); !errors.Is(err, errcode.NotSettable) {
		t.Fatalf("status-only Set err = %v", err)
	}
	if err := g.Get(5, clock); err != nil {
		t.Fatalf("status-only Get err = %v", err)
	}
}

func TestRemoteOpsAndPeerCache(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	g := New(cat, newFakeHW(), link, Config{}, nil)

	_ = g.Get(0, clock) // pump, digital
	_ = g.Get(1, clock) // pump, analog (15 >= 14)
	_ = g.Get(2, clock) // tank
	_ = g.Set(0, 1, clock)

	if len(link.switches) != 3 || link.switches[0] != 2 || link.switches[1] != 3 || link.switches[2] != 2 {
		t.Fatalf("switches = %v, want [2 3 2]", link.switches)
	}
	wantOps := []Op{ReadDigital, ReadAnalog, ReadAnalog, WriteDigital}
	for k, op := range wantOps {
		if link.begun[k].Op != op {
			t.Fatalf("request %d op = %v, want %v", k, link.begun[k].Op, op)
		}
	}
	if link.begun[3].Value != 1 || link.begun[3].Peer != 2 {
		t.Fatalf("write request = %+v", link.begun[3])
	}
}

func TestNonBlockingResolve(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	g := New(cat, newFakeHW(), link, Config{}, nil)

	if err := g.Get(1, clock); !errors.Is(err, errcode.CommPending) {
		t.Fatalf("Get err = %v, want pending", err)
	}
	if !g.PendingOn(1) || g.State() != Pending {
		t.Fatal("request should be pending on item 1")
	}
	if _, done := g.Tick(clock.Add(time.Second)); done {
		t.Fatal("no reply yet")
	}
	link.replies[1] = 197
	res, done := g.Tick(clock.Add(2 * time.Second))
	if !done || res.State != Resolved || res.Item != 1 || res.Write {
		t.Fatalf("Tick = %+v,%v", res, done)
	}
	if it := cat.Item(1); !it.Valid() || it.Sub(catalog.Main).Value != 197 {
		t.Fatal("reply not applied to Main")
	}
	if st := g.Stats(); st.Requests != 1 || st.Replies != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNonBlockingTimeout(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	g := New(cat, newFakeHW(), link, Config{Timeout: 3 * time.Second}, nil)
	cat.Item(0).SetValid(true)

	_ = g.Get(0, clock)
	if _, done := g.Tick(clock.Add(2999 * time.Millisecond)); done {
		t.Fatal("expired early")
	}
	res, done := g.Tick(clock.Add(3 * time.Second))
	if !done || res.State != TimedOut {
		t.Fatalf("Tick = %+v,%v", res, done)
	}
	if cat.Item(0).Valid() || !g.FailedOn(0) {
		t.Fatal("timeout must invalidate Main and mark the item failed")
	}
	if len(link.abandoned) != 1 || link.abandoned[0] != 1 {
		t.Fatalf("link abandoned = %v, want [1]", link.abandoned)
	}
	// A late reply for the expired handle is ignored.
	link.replies[1] = 1
	if _, done := g.Tick(clock.Add(4 * time.Second)); done {
		t.Fatal("late reply resurrected the request")
	}
	if cat.Item(0).Valid() {
		t.Fatal("late reply applied")
	}
	// Retrying clears the failure marker.
	_ = g.Get(0, clock.Add(5*time.Second))
	if g.FailedOn(0) {
		t.Fatal("new read should clear the failure marker")
	}
}

func TestCancelAbandonsHandle(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	g := New(cat, newFakeHW(), link, Config{}, nil)

	_ = g.Get(0, clock) // handle 1
	_ = g.Get(1, clock) // abandons 1, handle 2
	link.replies[1] = 1
	if _, done := g.Tick(clock); done {
		t.Fatal("reply for the abandoned handle was taken")
	}
	if cat.Item(0).Valid() {
		t.Fatal("abandoned reply applied to item 0")
	}
	g.Cancel()
	if g.State() != Idle {
		t.Fatal("Cancel must return to Idle")
	}
	link.replies[2] = 300
	if _, done := g.Tick(clock); done {
		t.Fatal("reply after Cancel was taken")
	}
	if st := g.Stats(); st.Abandoned != 2 {
		t.Fatalf("abandoned = %d, want 2", st.Abandoned)
	}
	if len(link.abandoned) != 2 || link.abandoned[0] != 1 || link.abandoned[1] != 2 {
		t.Fatalf("link abandoned = %v, want [1 2]", link.abandoned)
	}

	// Cancel with nothing outstanding does not reach the link.
	g.Cancel()
	if len(link.abandoned) != 2 {
		t.Fatalf("idle Cancel abandoned %v", link.abandoned)
	}
}

func TestFailureReply(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	g := New(cat, newFakeHW(), link, Config{}, nil)

	_ = g.Get(2, clock)
	link.replies[1] = -1
	res, done := g.Tick(clock)
	if !done || res.State != Failed || !g.FailedOn(2) {
		t.Fatalf("Tick = %+v,%v", res, done)
	}
}

func TestBlockingMode(t *testing.T) {
	cat := newCatalog()
	link := newFakeLink()
	link.callVal = 1
	g := New(cat, newFakeHW(), link, Config{Mode: Blocking}, nil)

	if err := g.Get(0, clock); err != nil {
		t.Fatalf("blocking Get: %v", err)
	}
	if it := cat.Item(0); !it.Valid() || it.Sub(catalog.Main).Value != 1 {
		t.Fatal("blocking reply not applied")
	}
	if _, done := g.Tick(clock); done {
		t.Fatal("blocking mode leaves nothing pending")
	}

	link.callErr = context.DeadlineExceeded
	if err := g.Get(0, clock); !errors.Is(err, errcode.CommTimeout) {
		t.Fatalf("err = %v, want comm_timeout", err)
	}
	if cat.Item(0).Valid() || g.State() != TimedOut {
		t.Fatal("timeout must invalidate Main")
	}
}
