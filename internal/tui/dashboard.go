// Package tui is the live dashboard for simulated runs: a scrolling
// temperature chart, the heater drive, and keys to change mode and
// setpoint while the loop runs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const historyCap = 240

type dashboard struct {
	loop *servo.Loop
	rig  *rig.Rig
	dt   float64

	now    time.Time
	cycle  int
	speed  int
	paused bool

	temps  []float64
	drives []float64
	status servo.Status
	notice string

	width  int
	height int
}

func NewDashboard(loop *servo.Loop, r *rig.Rig, dt float64) *dashboard {
	return &dashboard{
		loop:   loop,
		rig:    r,
		dt:     dt,
		now:    time.Unix(0, 0),
		speed:  1,
		temps:  make([]float64, 0, historyCap),
		drives: make([]float64, 0, historyCap),
		width:  80,
		height: 24,
	}
}

// Run blocks until the user quits.
func Run(loop *servo.Loop, r *rig.Rig, dt float64) error {
	_, err := tea.NewProgram(NewDashboard(loop, r, dt), tea.WithAltScreen()).Run()
	return err
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *dashboard) Init() tea.Cmd { return tick() }

func (m *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		if !m.paused {
			for i := 0; i < m.speed; i++ {
				m.step()
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m *dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
	case "l":
		m.setMode(servo.ModeLQG)
	case "p":
		m.setMode(servo.ModePID)
	case "i":
		m.setMode(servo.ModeIdle)
	case "up":
		m.loop.SetSetpoint(m.loop.Setpoint() + 0.1)
	case "down":
		m.loop.SetSetpoint(m.loop.Setpoint() - 0.1)
	case "d":
		m.rig.Kick(-1.0)
		m.notice = "ambient kicked -1.0 K"
	case "+", "=":
		if m.speed < 64 {
			m.speed *= 2
		}
	case "-":
		if m.speed > 1 {
			m.speed /= 2
		}
	}
	return m, nil
}

func (m *dashboard) setMode(mode servo.Mode) {
	if err := m.loop.SetMode(mode); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = fmt.Sprintf("mode -> %s", mode)
}

func (m *dashboard) step() {
	m.loop.Step(context.Background(), m.now)
	m.now = m.now.Add(time.Duration(m.dt * float64(time.Second)))
	m.cycle++

	m.status = m.loop.Status()
	if len(m.status.Temps) > 0 {
		m.temps = append(m.temps, m.status.Temps[0])
		if len(m.temps) > historyCap {
			m.temps = m.temps[1:]
		}
	}
	if len(m.status.Fractions) > 0 {
		m.drives = append(m.drives, m.status.Fractions[0])
		if len(m.drives) > historyCap {
			m.drives = m.drives[1:]
		}
	}
}

func (m *dashboard) View() string {
	var b strings.Builder

	b.WriteString(cyan.Render("thermoservo"))
	b.WriteString(dim.Render(fmt.Sprintf("  cycle %d  t=%s  x%d", m.cycle, fmtSeconds(float64(m.cycle)*m.dt), m.speed)))
	if m.paused {
		b.WriteString(yellow.Render("  [paused]"))
	}
	b.WriteString("\n\n")

	if len(m.temps) >= 2 {
		w := m.width - 12
		if w < 20 {
			w = 20
		}
		if w > historyCap {
			w = historyCap
		}
		series := m.temps
		if len(series) > w {
			series = series[len(series)-w:]
		}
		b.WriteString(asciigraph.Plot(series, asciigraph.Height(10), asciigraph.Precision(3)))
		b.WriteString("\n\n")
	} else {
		b.WriteString(dim.Render("waiting for samples...") + "\n\n")
	}

	st := m.status
	modeStyle := green
	if st.Mode == servo.ModeIdle {
		modeStyle = dim
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		dim.Render("mode"), modeStyle.Render(st.Mode.String()),
		dim.Render("setpoint"), white.Render(fmt.Sprintf("%.3f C", st.Setpoint)),
		dim.Render("temp"), white.Render(fmtTemp(st))))

	drive := 0.0
	if len(st.Fractions) > 0 {
		drive = st.Fractions[0]
	}
	b.WriteString(fmt.Sprintf("%s %s %5.1f%%\n", dim.Render("heater"), driveBar(drive, 30), drive*100))

	if st.Recording {
		b.WriteString(red.Render(fmt.Sprintf("rec %d", st.Recorded)) + "\n")
	}
	if m.notice != "" {
		b.WriteString(yellow.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dim.Render("[l]qg [p]id [i]dle  up/down setpoint  [d]isturb  space pause  +/- speed  q quit"))
	return b.String()
}

func fmtTemp(st servo.Status) string {
	if len(st.Temps) == 0 {
		return "--"
	}
	return fmt.Sprintf("%.3f C", st.Temps[0])
}

func fmtSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	return d.Truncate(time.Second).String()
}

func driveBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	fill := int(fraction*float64(width) + 0.5)
	return green.Render(strings.Repeat("█", fill)) + dim.Render(strings.Repeat("░", width-fill))
}
