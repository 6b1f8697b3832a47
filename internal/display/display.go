// Package display puts the render engine's frames on the terminal using
// Bubble Tea.
//
// Bubble Tea runs with input disabled: stdin belongs to the input watcher.
// The program only shows the latest frame and reports window sizes.
package display

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hammamikhairi/aura/internal/render"
)

// UI owns the Bubble Tea program.
//
// Create it with [NewUI], start [UI.Run] on its own goroutine and feed it
// with [UI.Show]. Show and Quit are safe from any goroutine.
type UI struct {
	program *tea.Program
	readyCh chan struct{}
	done    atomic.Bool
}

// NewUI creates the display. resize receives every terminal size change.
// Extra options are appended after the defaults (alt screen, no input).
func NewUI(resize func(width, height int), opts ...tea.ProgramOption) *UI {
	u := &UI{
		readyCh: make(chan struct{}),
	}
	m := model{resize: resize, readyCh: u.readyCh}
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithInput(nil)}, opts...)
	u.program = tea.NewProgram(m, opts...)
	return u
}

// Show replaces the frame on screen. It blocks until the event loop is
// running; frames after it ends are dropped.
func (u *UI) Show(l render.Layout) {
	if u.done.Load() {
		return
	}
	u.program.Send(frameMsg(l.String()))
}

// Ready is closed once the event loop is running. It is never closed when
// Run fails before that.
func (u *UI) Ready() <-chan struct{} { return u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() { u.program.Quit() }

// Run starts the event loop and blocks until Quit.
func (u *UI) Run() error {
	_, err := u.program.Run()
	u.done.Store(true)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type frameMsg string

type model struct {
	frame   string
	resize  func(width, height int)
	readyCh chan struct{}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("Aura"),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = string(msg)
	case tea.WindowSizeMsg:
		if m.resize != nil {
			m.resize(msg.Width, msg.Height)
		}
	}
	return m, nil
}

func (m model) View() string { return m.frame }
