// cmd/radio-test/main.go
//
// Radio bring-up: configure the module with the handset's address, then
// read every remote item's pin in turn and report replies and timeouts.
package main

import (
	"context"
	"time"

	"handset-go/drivers/atradio"
	"handset-go/services/handset"
	"handset-go/services/handset/config"
	"handset-go/x/logx"
)

const (
	bootDelay   = 1500 * time.Millisecond
	callTimeout = time.Second
	roundPause  = 2 * time.Second
)

type target struct {
	label string
	peer  uint16
	pin   uint8
	op    atradio.Op
}

func targets(cfg config.Config) []target {
	addr := map[string]uint16{}
	for _, p := range cfg.Peers {
		addr[p.Name] = p.Addr
	}
	var out []target
	for _, it := range cfg.Items {
		if it.Device == config.SelfDevice || it.Pin == nil {
			continue
		}
		op := atradio.ReadDigital
		if *it.Pin >= cfg.AnalogBase {
			op = atradio.ReadAnalog
		}
		out = append(out, target{label: it.Device + "/" + it.Label, peer: addr[it.Device], pin: *it.Pin, op: op})
	}
	return out
}

func main() {
	println("[radio] boot …")
	time.Sleep(bootDelay)

	ctx := context.Background()
	cfg := config.Default()
	log := logx.New("radio")
	c := atradio.NewClient(handset.DefaultBoard().Radio, log)
	c.Start(ctx)

	for {
		if err := c.Configure(ctx, cfg.Self.Addr, cfg.Network); err != nil {
			println("[radio] FAIL: configure:", err.Error())
			time.Sleep(roundPause)
			continue
		}
		break
	}
	println("[radio] configured addr", cfg.Self.Addr, "network", cfg.Network)

	ts := targets(cfg)
	for round := 1; ; round++ {
		ok := 0
		for _, t := range ts {
			c.SetPeer(t.peer)
			cctx, cancel := context.WithTimeout(ctx, callTimeout)
			v, err := c.Call(cctx, t.op, t.pin, 0)
			cancel()
			if err != nil {
				println("[radio]", t.label, t.op.String(), "ERR", err.Error())
				continue
			}
			ok++
			println("[radio]", t.label, t.op.String(), "=", v)
		}
		st := c.Stats()
		println("[radio] round", round, "ok", ok, "/", len(ts),
			"sent", st.Sent, "replies", st.Replies, "late", st.Late, "malformed", st.Malformed)
		time.Sleep(roundPause)
	}
}
