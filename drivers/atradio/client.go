package atradio

import (
	"context"
	"sync"

	"handset-go/errcode"
	"handset-go/x/logx"
)

type ClientStats struct {
	Sent      uint32
	Replies   uint32
	Late      uint32 // replies for a sequence that is no longer outstanding
	Malformed uint32
}

// Client issues requests to one selected peer. Only the most recent request
// is outstanding; a reply carrying any other sequence number is dropped.
type Client struct {
	m   *Modem
	log logx.Logger

	mu     sync.Mutex
	peer   uint16
	seq    uint8
	cur    uint8 // outstanding sequence, 0 when none
	val    int
	have   bool
	notify chan struct{}
	stats  ClientStats
}

func NewClient(port Port, log logx.Logger) *Client {
	c := &Client{log: logx.Or(log), notify: make(chan struct{}, 1)}
	c.m = NewModem(port, c.onFrame, log)
	return c
}

func (c *Client) Modem() *Modem { return c.m }

func (c *Client) Configure(ctx context.Context, addr uint16, network uint8) error {
	return c.m.Configure(ctx, addr, network)
}

func (c *Client) Start(ctx context.Context) { c.m.Start(ctx) }

func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SetPeer selects the destination of subsequent requests.
func (c *Client) SetPeer(peer uint16) {
	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()
}

// Begin sends a request and returns its sequence number. Any earlier
// request is abandoned.
func (c *Client) Begin(op Op, pin uint8, value int) (uint8, error) {
	c.mu.Lock()
	c.seq++
	if c.seq == 0 {
		c.seq = 1
	}
	seq, peer := c.seq, c.peer
	c.cur, c.have = seq, false
	c.stats.Sent++
	c.mu.Unlock()

	select {
	case <-c.notify:
	default:
	}
	var buf [24]byte
	payload := AppendRequest(buf[:0], Request{Seq: seq, Op: op, Pin: pin, Value: value})
	if err := c.m.Send(peer, payload); err != nil {
		c.mu.Lock()
		if c.cur == seq {
			c.cur = 0
		}
		c.mu.Unlock()
		return 0, err
	}
	return seq, nil
}

// Poll returns the reply to seq once it has arrived; failures report -1.
func (c *Client) Poll(seq uint8) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == 0 || seq != c.cur || !c.have {
		return 0, false
	}
	c.cur, c.have = 0, false
	return c.val, true
}

// Abandon forgets seq; its reply will count as late.
func (c *Client) Abandon(seq uint8) {
	c.mu.Lock()
	if c.cur == seq {
		c.cur, c.have = 0, false
	}
	c.mu.Unlock()
}

// Call sends a request and waits for the reply or ctx.
func (c *Client) Call(ctx context.Context, op Op, pin uint8, value int) (int, error) {
	seq, err := c.Begin(op, pin, value)
	if err != nil {
		return -1, err
	}
	for {
		if v, ok := c.Poll(seq); ok {
			if v < 0 {
				return -1, &errcode.E{C: errcode.CommFailed, Op: "atradio.call", Msg: op.String()}
			}
			return v, nil
		}
		select {
		case <-ctx.Done():
			c.Abandon(seq)
			return -1, errcode.Wrap(errcode.CommTimeout, "atradio.call", ctx.Err())
		case <-c.notify:
		}
	}
}

func (c *Client) onFrame(f Frame) {
	r, ok := ParseReply(f.Data)
	c.mu.Lock()
	switch {
	case !ok:
		c.stats.Malformed++
	case r.Seq != c.cur || c.have || f.From != c.peer:
		c.stats.Late++
	default:
		c.stats.Replies++
		c.have = true
		c.val = r.Value
		if !r.OK {
			c.val = -1
		}
	}
	c.mu.Unlock()
	if ok {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}
