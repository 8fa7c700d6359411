package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexshd/udefarp"
)

// percentMsg carries one engine progress checkpoint into the program.
type percentMsg int

// doneMsg ends the program with the workflow's error.
type doneMsg struct{ err error }

// barModel renders the engine's progress channel as a bar.
type barModel struct {
	title   string
	bar     progress.Model
	percent int
	done    bool
	err     error
}

func newBarModel(title string) barModel {
	return barModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m barModel) Init() tea.Cmd {
	return nil
}

func (m barModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// The engine has no cancellation point; leave it to finish in
			// the background and stop rendering.
			m.err = fmt.Errorf("interrupted")
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-len(m.title)-8, 10), 80)
	case percentMsg:
		m.percent = int(msg)
	case doneMsg:
		m.done = true
		m.err = msg.err
		if msg.err == nil {
			m.percent = 100
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m barModel) View() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", m.title, m.bar.ViewAs(float64(m.percent)/100))
	return sb.String()
}

// track runs fn with the session's progress channel wired to the selected
// display.
func (e *env) track(title string, fn func() error) error {
	switch e.progress {
	case "none":
		e.session.Progress = nil
		return fn()
	case "log":
		e.session.Progress = logProgress(e, title)
		return fn()
	}

	p := tea.NewProgram(newBarModel(title))
	e.session.Progress = func(percent int) {
		p.Send(percentMsg(percent))
	}
	go func() {
		p.Send(doneMsg{err: fn()})
	}()

	result, err := p.Run()
	if err != nil {
		return err
	}
	final, ok := result.(barModel)
	if !ok {
		return fmt.Errorf("unexpected progress model %T", result)
	}
	return final.err
}

// logProgress logs every quarter reached.
func logProgress(e *env, title string) udefarp.ProgressFunc {
	next := 0
	return func(percent int) {
		if percent < next {
			return
		}
		e.logger.Info(title, "percent", percent)
		next = (percent/25 + 1) * 25
	}
}
