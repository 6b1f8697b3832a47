package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	accent = lipgloss.Color("#67e8f9")

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Align(lipgloss.Center)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
	quitStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fca5a5"))

	songsStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#fde68a")).
			Padding(1, 1)

	statsStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#52525b")).
			Padding(1, 1)

	footerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)

	columnHeadStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	selectedStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#1d4ed8")).Foreground(lipgloss.Color("#f4f4f5"))
	idStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bbf7d0"))
	artistStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f0abfc"))
	keyStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bbf7d0")).Width(8)

	dotListening  = lipgloss.NewStyle().Bold(true).Foreground(accent).Render("● ")
	dotProcessing = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fde68a")).Render("● ")
	dotIdle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#86efac")).Render("● ")
)

// Column widths of the song table.
const (
	colTitle  = 30
	colArtist = 25
	colGenre  = 12
	timeFmt   = "15:04:05"
)

// Keys lists the bindings shown in the help panel, in display order.
var Keys = []key.Binding{
	key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "Navigate songs")),
	key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "Download selected")),
	key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "Play selected on YT")),
	key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "Voice search")),
	key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "Remove selected")),
	key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle help")),
	key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q/ESC", "Quit program")),
}

// Truncate shortens s to at most width terminal columns, ending in "..."
// when cut. Multi-byte and wide runes are never split.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// cell truncates and pads s to exactly width columns.
func cell(s string, width int) string {
	return runewidth.FillRight(Truncate(s, width), width)
}

// Layout is one rendered frame split into its regions.
type Layout struct {
	Header  string
	Songs   string
	Sidebar string
	Footer  string
}

// String joins the regions into the final frame.
func (l Layout) String() string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, l.Songs, l.Sidebar)
	return lipgloss.JoinVertical(lipgloss.Left, l.Header, main, l.Footer)
}

// ── Memoization ──────────────────────────────────────────────────

type listKey struct {
	count, selected, offset, rows, width int
	first, last                          int // ids at both ends, catches removals
}

type sidebarKey struct {
	help   bool
	width  int
	height int
	stats  Stats
}

type memo struct {
	headerWidth int
	header      string

	footerWidth  int
	footerStatus string
	footer       string

	list      listKey
	listValid bool
	songs     string

	side      sidebarKey
	sideValid bool
	sidebar   string

	builds struct{ header, footer, songs, sidebar int }
}

// Render produces the current frame, rebuilding only the regions whose
// inputs changed. It does not clear the redraw flag; call MarkRendered once
// the frame has been shown.
func (e *Engine) Render() Layout {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Capture gen before reading the status: SetStatus writes the text
	// first and bumps gen under mu afterwards.
	e.drawnGen = e.gen
	status := e.Status()

	width := e.width
	if width <= 0 {
		width = 100
	}
	songsW := width * 2 / 3
	sideW := width - songsW
	rows := e.visibleRowsLocked()
	m := &e.memo

	if m.header == "" || m.headerWidth != width {
		m.header = buildHeader(width)
		m.headerWidth = width
		m.builds.header++
	}

	if m.footer == "" || m.footerStatus != status || m.footerWidth != width {
		m.footer = buildFooter(status, width)
		m.footerStatus = status
		m.footerWidth = width
		m.builds.footer++
	}

	lk := listKey{count: len(e.tracks), selected: e.selected, offset: e.offset, rows: rows, width: songsW}
	if n := len(e.tracks); n > 0 {
		lk.first, lk.last = e.tracks[0].ID, e.tracks[n-1].ID
	}
	if !m.listValid || m.list != lk {
		m.songs = e.buildSongsLocked(songsW, rows)
		m.list = lk
		m.listValid = true
		m.builds.songs++
	}

	sk := sidebarKey{help: e.showHelp, width: sideW, height: rows}
	if !e.showHelp && e.statsFn != nil {
		sk.stats = e.statsFn()
	}
	if !m.sideValid || m.side != sk {
		if e.showHelp {
			m.sidebar = buildHelp(sideW)
		} else {
			m.sidebar = buildStats(sk.stats, sideW)
		}
		m.side = sk
		m.sideValid = true
		m.builds.sidebar++
	}

	return Layout{Header: m.header, Songs: m.songs, Sidebar: m.sidebar, Footer: m.footer}
}

// ── Region builders ──────────────────────────────────────────────

func buildHeader(width int) string {
	text := titleStyle.Render("♪ AURA LIVE") + dimStyle.Render(" | ") +
		quitStyle.Render("q") + dimStyle.Render(" to quit")
	return headerStyle.Width(max(1, width-2)).Render(text)
}

func buildFooter(status string, width int) string {
	dot := dotIdle
	switch {
	case strings.HasPrefix(status, "Listening"):
		dot = dotListening
	case strings.HasPrefix(status, "Processing"):
		dot = dotProcessing
	}
	line := dot + dimStyle.Render(Truncate(status, max(1, width-6)))
	return footerStyle.Width(max(1, width-2)).Render(line)
}

func (e *Engine) buildSongsLocked(width, rows int) string {
	inner := max(1, width-2-4) // border + horizontal padding
	title := titleStyle.Render("Detected Songs")
	if n := len(e.tracks); n > rows {
		title += dimStyle.Render(fmt.Sprintf(" (%d-%d/%d)", e.offset+1, min(e.offset+rows, n), n))
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")

	if len(e.tracks) == 0 {
		b.WriteString(dimStyle.Render("No songs detected yet...\nListening for music..."))
		return songsStyle.Width(max(1, width-2)).Render(b.String())
	}

	b.WriteString(columnHeadStyle.Render(
		"  " + cell("ID", 5) + " " + cell("Time", 9) + " " + cell("Song", colTitle) + " " +
			cell("Artist", colArtist) + " " + "Info"))

	end := min(e.offset+rows, len(e.tracks))
	for i := e.offset; i < end; i++ {
		t := e.tracks[i]
		b.WriteByte('\n')

		indicator := "  "
		if i == e.selected {
			indicator = "► "
		}
		genre := t.Genre
		if genre == "" {
			genre = "Unknown"
		}
		clock := "--:--:--"
		if !t.DetectedAt.IsZero() {
			clock = t.DetectedAt.Format(timeFmt)
		}
		id := cell(fmt.Sprintf("#%03d", t.ID), 5)
		info := Truncate(genre, colGenre) + ", " + t.Year()

		if i == e.selected {
			row := indicator + id + " " + cell(clock, 9) + " " + cell(t.Title, colTitle) + " " +
				cell(t.Artist, colArtist) + " " + info
			b.WriteString(selectedStyle.Render(cell(row, inner)))
			continue
		}
		b.WriteString(indicator + idStyle.Render(id) + " " + dimStyle.Render(cell(clock, 9)) + " " +
			cell(t.Title, colTitle) + " " + artistStyle.Render(cell(t.Artist, colArtist)) + " " +
			dimStyle.Render(info))
	}
	return songsStyle.Width(max(1, width-2)).Render(b.String())
}

func buildHelp(width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fde68a")).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, k := range Keys {
		h := k.Help()
		b.WriteString("\n" + keyStyle.Render(h.Key) + h.Desc)
	}
	return helpStyle.Width(max(1, width-2)).Render(b.String())
}

func buildStats(st Stats, width int) string {
	lines := []string{
		titleStyle.Render("Session"),
		"",
		fmt.Sprintf("Tracks    %s", humanize.Comma(int64(st.Count))),
		fmt.Sprintf("Artists   %s", humanize.Comma(int64(st.Artists))),
		fmt.Sprintf("Avg pop.  %s", humanize.FormatFloat("#,###.#", st.AvgPopularity)),
	}
	if st.AllTime > 0 {
		lines = append(lines, fmt.Sprintf("All time  %s", humanize.Comma(st.AllTime)))
	}
	if st.TopArtists[0].Plays > 0 {
		lines = append(lines, "", titleStyle.Render("Top artists"))
		for _, a := range st.TopArtists {
			if a.Plays == 0 {
				break
			}
			name := Truncate(a.Artist, max(1, width-14))
			lines = append(lines, fmt.Sprintf("%s %s", name, dimStyle.Render(humanize.Comma(a.Plays))))
		}
	}
	lines = append(lines, "", dimStyle.Render("? shows the shortcuts"))
	return statsStyle.Width(max(1, width-2)).Render(strings.Join(lines, "\n"))
}
