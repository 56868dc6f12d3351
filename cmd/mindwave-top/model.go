package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/headset"
	"github.com/banshee-data/mindwave.report/internal/history"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

const refreshInterval = 250 * time.Millisecond

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sampleMsg carries one dispatched sample into the program.
type sampleMsg struct {
	sample thinkgear.Sample
	blink  *blink.Event
}

type tickMsg time.Time

type errMsg struct{ err error }

// model is the terminal view of a single headset.
type model struct {
	ctx context.Context
	h   headset.Interface

	sample  thinkgear.Sample
	blink   *blink.Event
	samples uint64
	status  headset.Status
	stats   headset.Stats
	snap    history.Snapshot
	err     error
	width   int
}

func newModel(ctx context.Context, h headset.Interface) model {
	return model{ctx: ctx, h: h, width: 80}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "c":
			return m, m.toggle()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case sampleMsg:
		m.sample = msg.sample
		m.blink = msg.blink
		m.samples++
	case errMsg:
		m.err = msg.err
	case tickMsg:
		m.status = m.h.Status()
		m.stats = m.h.Stats()
		m.snap = m.h.History()
		return m, tick()
	}
	return m, nil
}

// toggle connects or disconnects the headset without blocking the UI.
func (m model) toggle() tea.Cmd {
	ctx, h := m.ctx, m.h
	return func() tea.Msg {
		var err error
		if h.Connected() {
			err = h.Disconnect()
		} else {
			err = h.Connect(ctx)
		}
		return errMsg{err: err}
	}
}

func (m model) View() string {
	var b strings.Builder

	state := "disconnected"
	if m.status.Connected {
		state = "connected " + m.status.ConnectedAt.Format(time.TimeOnly)
	}
	fmt.Fprintf(&b, "MindWave %s  [%s]  %s\n", m.status.Path, m.status.Port, state)
	if m.status.LinkError != "" {
		fmt.Fprintf(&b, "link error: %s\n", m.status.LinkError)
	}
	if m.err != nil {
		fmt.Fprintf(&b, "error: %v\n", m.err)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "signal quality %3d  attention %3d  meditation %3d  raw %6d\n",
		m.sample.SignalQuality, m.sample.Attention, m.sample.Meditation, m.sample.Raw)
	blinkText := "none"
	if m.blink != nil && m.blink.Type != blink.None {
		blinkText = fmt.Sprintf("%s at %s", m.blink.Type, m.blink.At.Format("15:04:05.000"))
	}
	fmt.Fprintf(&b, "last blink %s\n\n", blinkText)

	width := m.width - 14
	if width < 10 {
		width = 10
	}
	for _, ch := range history.Channels {
		fmt.Fprintf(&b, "%-11s %s\n", ch, sparkline(m.snap[ch], width))
	}

	fmt.Fprintf(&b, "\nframes %d  blinks %d  checksum %d  length %d  short %d  read %d\n",
		m.stats.Frames, m.stats.Blinks, m.stats.ChecksumErrors, m.stats.LengthErrors,
		m.stats.ShortFrames, m.stats.ReadErrors)
	b.WriteString("c connect/disconnect  q quit\n")
	return b.String()
}

// sparkline scales the newest width values between their min and max.
func sparkline(values []float64, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}
	if len(values) == 0 {
		return ""
	}
	sum := history.Summarize(values)
	span := sum.Max - sum.Min
	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if span > 0 {
			idx = int((v - sum.Min) / span * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}
