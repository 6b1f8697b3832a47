package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-runewidth"
)

//go:embed banner.txt
var bannerRaw string

var (
	// BannerStyle is the muted slate used for startup output.
	BannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
)

// RenderBanner returns the banner art centred for the current terminal.
func RenderBanner() string {
	return centre(bannerRaw, termWidth())
}

func centre(art string, width int) string {
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")

	maxW := 0
	for _, l := range lines {
		maxW = max(maxW, runewidth.StringWidth(l))
	}
	pad := 0
	if width > maxW {
		pad = (width - maxW) / 2
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// CheckLine formats one startup self-test result.
func CheckLine(name string, err error) string {
	if err != nil {
		return failStyle.Render("  ✗ "+name+": ") + err.Error()
	}
	return okStyle.Render("  ✓ " + name)
}

// termWidth returns the terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
