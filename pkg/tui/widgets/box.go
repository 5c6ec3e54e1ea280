package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/opsdash/pkg/tui/styles"
)

// Box is the bordered section container every dashboard pane renders
// into: a title on the left, keybind hints on the right, content below.
type Box struct {
	Title      string
	TitleRight string
	Content    string
	Width      int
	Height     int
	Style      lipgloss.Style
	theme      styles.Theme
}

func NewBox(title string) Box {
	theme := styles.DefaultTheme()
	return Box{
		Title: title,
		Style: theme.Border,
		theme: theme,
	}
}

func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

// WithTitleRight sets the right-aligned hint text, usually keybinds.
func (b Box) WithTitleRight(text string) Box {
	b.TitleRight = text
	return b
}

func (b Box) WithSize(width, height int) Box {
	b.Width = width
	b.Height = height
	return b
}

func (b Box) WithStyle(s lipgloss.Style) Box {
	b.Style = s
	return b
}

func (b Box) Render() string {
	inner := b.Width - 2 // border columns
	if inner < 0 {
		inner = 0
	}

	body := b.Content
	if header := b.headerLine(inner); header != "" {
		body = header + "\n" + body
	}

	style := b.Style
	if b.Width > 0 {
		style = style.Width(inner)
	}
	if b.Height > 0 {
		h := b.Height - 2 // border rows
		if b.Title != "" || b.TitleRight != "" {
			h--
		}
		if h < 0 {
			h = 0
		}
		style = style.Height(h)
	}
	return style.Render(body)
}

// headerLine lays the title and hint text on one row, padded apart to
// the inner width. At least one space always separates them.
func (b Box) headerLine(inner int) string {
	if b.Title == "" && b.TitleRight == "" {
		return ""
	}
	left := ""
	if b.Title != "" {
		left = b.theme.Title.Render(b.Title)
	}
	right := ""
	if b.TitleRight != "" {
		right = b.theme.TitleMuted.Render(b.TitleRight)
	}
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
