// Package dashboard renders a live terminal UI over a running Metron test,
// polling the telemetry Sink's cumulative totals on a tick and redrawing a
// small set of widgets: a header describing the run, a success-rate
// progress bar, and a line of throughput counters.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	quitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Config carries the run parameters the header displays. It never changes
// once a Dashboard starts.
type Config struct {
	Targets    []string
	Controller config.ControllerMode
	Workers    int
	RunTag     string
}

// Dashboard owns a Bubble Tea program's lifecycle: Start launches it in the
// background, Stop tears it down and waits for the terminal to be restored.
type Dashboard struct {
	program *tea.Program
	done    chan struct{}
}

// New returns a Dashboard that polls sink every interval and calls cancel
// when the user quits (q or ctrl+c) rather than letting the run finish.
func New(sink *telemetry.Sink, cfg Config, interval time.Duration, cancel func()) *Dashboard {
	m := model{
		sink:      sink,
		cfg:       cfg,
		interval:  interval,
		cancel:    cancel,
		startTime: time.Now(),
		prog:      progress.New(progress.WithDefaultGradient()),
	}
	return &Dashboard{
		program: tea.NewProgram(m),
		done:    make(chan struct{}),
	}
}

// Start runs the dashboard in a background goroutine.
func (d *Dashboard) Start() {
	go func() {
		defer close(d.done)
		_, _ = d.program.Run()
	}()
}

// Stop asks the program to quit and waits for its goroutine to return,
// restoring the terminal before this call returns.
func (d *Dashboard) Stop() {
	d.program.Quit()
	<-d.done
}

type tickMsg time.Time

type model struct {
	sink      *telemetry.Sink
	cfg       Config
	interval  time.Duration
	cancel    func()
	startTime time.Time
	prog      progress.Model

	sent, successes int64
	rps             float64
	width           int
	quitting        bool
}

func (m model) Init() tea.Cmd {
	return tick(m.interval)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := msg.Width - 4
		if barWidth > 80 {
			barWidth = 80
		}
		if barWidth < 10 {
			barWidth = 10
		}
		m.prog.Width = barWidth
	case tickMsg:
		m.sent, m.successes, m.rps = m.sink.Totals()
		return m, tick(m.interval)
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return quitStyle.Render("metron: stopping run...\n")
	}

	header := headerStyle.Render(fmt.Sprintf("metron %s", m.cfg.Controller))
	meta := labelStyle.Render(fmt.Sprintf("targets: %s | workers: %d | elapsed: %s",
		strings.Join(m.cfg.Targets, ","), m.cfg.Workers, time.Since(m.startTime).Round(time.Second)))
	if m.cfg.RunTag != "" {
		meta = labelStyle.Render(fmt.Sprintf("run: %s | %s", m.cfg.RunTag, meta))
	}

	var successRate float64
	if m.sent > 0 {
		successRate = float64(m.successes) / float64(m.sent)
	}
	bar := m.prog.ViewAs(successRate)

	counters := fmt.Sprintf("sent %d  successes %d  rps %.1f", m.sent, m.successes, m.rps)

	body := lipgloss.JoinVertical(lipgloss.Left, header, meta, "", bar, counters)
	footer := quitStyle.Render("q to stop")

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body, footer)) + "\n"
}
