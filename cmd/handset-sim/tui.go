package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"handset-go/bus"
	"handset-go/services/handset"
	"handset-go/types"
)

var (
	lcdStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Foreground(lipgloss.Color("#202020")).Background(lipgloss.Color("#9BBC0F"))
	alarmStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

func doTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	frames *bus.Subscription
	alarms *bus.Subscription
	comms  *bus.Subscription
	states *bus.Subscription

	keys  *keypad
	buzz  *buzzer
	plant *plant

	frame  types.Frame
	alarm  types.AlarmState
	comm   types.CommStatus
	state  types.ServiceState
	status string
}

func newModel(conn *bus.Connection, keys *keypad, buzz *buzzer, p *plant) model {
	var blank types.Frame
	for r := range blank {
		for c := range blank[r] {
			blank[r][c] = ' '
		}
	}
	return model{
		frames: conn.Subscribe(handset.TopicFrame),
		alarms: conn.Subscribe(handset.TopicAlarm),
		comms:  conn.Subscribe(handset.TopicComm),
		states: conn.Subscribe(handset.TopicState),
		keys:   keys,
		buzz:   buzz,
		plant:  p,
		frame:  blank,
		status: "arrows move, enter selects, q quits",
	}
}

func (m model) Init() tea.Cmd { return doTick() }

// drain takes everything queued on the handset topics, keeping the latest.
func (m *model) drain() {
	for {
		select {
		case msg := <-m.frames.Channel():
			if f, ok := msg.Payload.(types.Frame); ok {
				m.frame = f
			}
		case msg := <-m.alarms.Channel():
			if a, ok := msg.Payload.(types.AlarmState); ok {
				m.alarm = a
			}
		case msg := <-m.comms.Channel():
			if c, ok := msg.Payload.(types.CommStatus); ok {
				m.comm = c
			}
		case msg := <-m.states.Channel():
			if s, ok := msg.Payload.(types.ServiceState); ok {
				m.state = s
			}
		default:
			return
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			m.keys.tap("up")
		case tea.KeyDown:
			m.keys.tap("down")
		case tea.KeyLeft:
			m.keys.tap("left")
		case tea.KeyRight:
			m.keys.tap("right")
		case tea.KeyEnter:
			m.keys.tap("select")
		default:
			if msg.String() == "q" {
				return m, tea.Quit
			}
			m.plantKey(msg.String())
		}
	case tickMsg:
		m.drain()
		return m, doTick()
	}
	return m, nil
}

// plantKey lets the operator disturb the simulated peers.
func (m *model) plantKey(k string) {
	if m.plant == nil {
		m.status = "no simulated peers on a real radio"
		return
	}
	switch k {
	case "p":
		m.status = fmt.Sprintf("Pump power pin -> %d", m.plant.nudge("Pump", 3, 0))
	case "v":
		m.status = fmt.Sprintf("Tank valve pin -> %d", m.plant.nudge("Tank", 4, 0))
	case "[":
		m.status = fmt.Sprintf("Tank level -> %d", m.plant.nudge("Tank", 27, -25))
	case "]":
		m.status = fmt.Sprintf("Tank level -> %d", m.plant.nudge("Tank", 27, 25))
	case "-":
		m.status = fmt.Sprintf("Pump pressure raw -> %d", m.plant.nudge("Pump", 26, -25))
	case "=", "+":
		m.status = fmt.Sprintf("Pump pressure raw -> %d", m.plant.nudge("Pump", 26, 25))
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("--- Irrigation handset ---\n\n")
	b.WriteString(lcdStyle.Render(m.frame.Line(0) + "\n" + m.frame.Line(1)))
	b.WriteString("\n\n")

	if m.alarm.Active {
		b.WriteString(alarmStyle.Render(fmt.Sprintf("ALARM %s %s  %d Hz", m.alarm.Label, m.alarm.Role, m.alarm.ToneHz)))
	} else if hz := m.buzz.tone(); hz != 0 {
		b.WriteString(alarmStyle.Render(fmt.Sprintf("buzzer %d Hz", hz)))
	} else {
		b.WriteString(dimStyle.Render("no alarm"))
	}
	b.WriteString("\n")

	c := m.comm
	fmt.Fprintf(&b, "link %-8s peer %-3d %-9s req %d  rep %d  timeout %d  fail %d  abandoned %d  late %d\n",
		c.Link, c.Peer, c.State, c.Requests, c.Replies, c.Timeouts, c.Failures, c.Abandoned, c.Late)
	if c.Error != "" {
		b.WriteString(alarmStyle.Render(c.Error))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "service %s (%s)\n\n", m.state.Level, m.state.Status)

	b.WriteString(dimStyle.Render("p pump power  v valve  [ ] tank level  - + pressure  q quit"))
	b.WriteString("\n")
	b.WriteString(m.status)
	return b.String()
}
