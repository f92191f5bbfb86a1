package status

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const tuiMaxEvents = 12

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	titleStyle = cyan.Bold(true)
)

// --- messages ---
type eventMsg struct {
	at    time.Time
	level slog.Level
	text  string
}
type statusMsg string
type idleMsg struct{ until time.Time }
type busyMsg struct{}
type countdownTickMsg time.Time

type tuiModel struct {
	title     string
	spinner   spinner.Model
	status    string
	idleUntil time.Time
	events    []eventMsg
	width     int
}

func newTUIModel(title string) tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return tuiModel{
		title:   title,
		spinner: s,
		status:  "starting",
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, countdownTick())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case countdownTickMsg:
		return m, countdownTick()

	case eventMsg:
		m.events = append(m.events, msg)
		if len(m.events) > tuiMaxEvents {
			m.events = m.events[len(m.events)-tuiMaxEvents:]
		}

	case statusMsg:
		m.status = string(msg)

	case idleMsg:
		m.idleUntil = msg.until

	case busyMsg:
		m.idleUntil = time.Time{}
	}

	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, ev := range m.events {
		b.WriteString(gray.Render(ev.at.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(levelStyle(ev.level).Render(ev.text))
		b.WriteString("\n")
	}
	if len(m.events) > 0 {
		b.WriteString("\n")
	}

	if !m.idleUntil.IsZero() {
		remaining := time.Until(m.idleUntil).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		b.WriteString(green.Render("● idle"))
		b.WriteString(gray.Render(fmt.Sprintf(" next sync in %s", remaining)))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(m.status)
	}
	b.WriteString("\n")
	b.WriteString(gray.Render("press q to quit"))
	b.WriteString("\n")

	return b.String()
}

func levelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return red
	case level >= slog.LevelWarn:
		return yellow
	case level >= slog.LevelInfo:
		return lipgloss.NewStyle()
	default:
		return gray
	}
}

func countdownTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return countdownTickMsg(t) })
}

// TUIReporter renders events in an interactive terminal view. Events are also
// forwarded to an optional logger so the log file stays complete.
type TUIReporter struct {
	program *tea.Program
	logger  *slog.Logger
}

func NewTUIReporter(title string, logger *slog.Logger, opts ...tea.ProgramOption) *TUIReporter {
	return &TUIReporter{
		program: tea.NewProgram(newTUIModel(title), opts...),
		logger:  logger,
	}
}

// Run blocks until the user quits or ctx is done. It must be started before
// any event is sent since Send blocks until the program is running. A user quit returns
// context.Canceled so callers can shut down the rest of the process.
func (r *TUIReporter) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.program.Quit()
	}()

	if _, err := r.program.Run(); err != nil {
		return fmt.Errorf("status ui: %w", err)
	}
	if ctx.Err() == nil {
		return context.Canceled
	}
	return nil
}

func (r *TUIReporter) LogEvent(level slog.Level, msg string, args ...any) {
	if r.logger != nil {
		r.logger.Log(context.Background(), level, msg, args...)
	}
	r.program.Send(eventMsg{at: time.Now(), level: level, text: formatEvent(msg, args)})
}

func (r *TUIReporter) UpdateStatus(text string) {
	r.program.Send(statusMsg(text))
}

func (r *TUIReporter) StartIdleCountdown(d time.Duration) {
	r.program.Send(idleMsg{until: time.Now().Add(d)})
}

func (r *TUIReporter) StopIdleCountdown() {
	r.program.Send(busyMsg{})
}

// formatEvent renders slog-style key/value args inline: "upload path=a.txt size=3 kB"
func formatEvent(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

var _ Reporter = (*TUIReporter)(nil)
