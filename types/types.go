package types

// ---- Service state (retained, "handset/state") ----

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Link is the radio link state reported in CommStatus.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// ---- Display ----

const (
	FrameRows = 2
	FrameCols = 16
)

// Frame is one full redraw of the character display ("view/frame").
type Frame [FrameRows][FrameCols]byte

func (f *Frame) Line(row int) string { return string(f[row][:]) }

// ---- Alarm ----

type AlarmState struct {
	Active bool   `json:"active"`
	Item   int    `json:"item"`
	Label  string `json:"label,omitempty"`
	Role   string `json:"role,omitempty"` // "lo" or "hi"
	ToneHz uint16 `json:"tone_hz,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ---- Communication ----

type CommStatus struct {
	Link      Link   `json:"link"`
	State     string `json:"state"` // "idle", "pending", "resolved", "timed_out", "failed"
	Item      int    `json:"item"`
	Peer      uint16 `json:"peer"`
	Requests  uint32 `json:"requests"`
	Replies   uint32 `json:"replies"`
	Timeouts  uint32 `json:"timeouts"`
	Failures  uint32 `json:"failures"`
	Abandoned uint32 `json:"abandoned"`
	Late      uint32 `json:"late"`
	TS        int64  `json:"ts_ms"`
	Error     string `json:"error,omitempty"`
}
