package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// slowAfter is when the spinner starts showing elapsed time. Docker
// queries against a daemon that is still starting can take a while.
const slowAfter = 2 * time.Second

// RunWithSpinner runs fn while a spinner shows msg on stderr. Without a
// terminal fn runs with no output. Ctrl+C cancels the context passed to fn.
func RunWithSpinner(ctx context.Context, msg string, fn func(ctx context.Context) error) error {
	return runWithSpinner(ctx, os.Stderr, IsInteractive(), msg, fn)
}

func runWithSpinner(ctx context.Context, out io.Writer, interactive bool, msg string, fn func(ctx context.Context) error) error {
	if !interactive {
		return fn(ctx)
	}

	m := newSpinnerModel(msg, time.Now)

	fnCtx, fnCancel := context.WithCancel(ctx)
	defer fnCancel()

	p := tea.NewProgram(m,
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)

	go func() {
		p.Send(spinnerDoneMsg{err: fn(fnCtx)})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("spinner: %w", err)
	}

	if m.cancelled {
		fnCancel()
		return context.Canceled
	}
	return m.err
}

type spinnerDoneMsg struct{ err error }

type spinnerModel struct {
	spinner   spinner.Model
	msg       string
	now       func() time.Time
	started   time.Time
	err       error
	done      bool
	cancelled bool
}

func newSpinnerModel(msg string, now func() time.Time) *spinnerModel {
	return &spinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(AccentStyle),
		),
		msg:     msg,
		now:     now,
		started: now(),
	}
}

func (m *spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done, m.err = true, msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinnerModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	line := m.spinner.View() + " " + m.msg
	if elapsed := m.now().Sub(m.started); elapsed >= slowAfter {
		line += " " + Muted(fmt.Sprintf("(%s, ctrl+c to stop)", elapsed.Truncate(time.Second)))
	}
	return line + "\n"
}
