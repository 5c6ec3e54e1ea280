package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ProgressBar is the healthy-ratio bar shown under the service grid: a
// fill bar with an "n/m healthy" caption.
type ProgressBar struct {
	have  int
	total int
	width int
	style lipgloss.Style
}

// NewProgressBar creates a bar for have-out-of-total services.
func NewProgressBar(have, total int) ProgressBar {
	if total < 0 {
		total = 0
	}
	if have < 0 {
		have = 0
	}
	if have > total {
		have = total
	}
	return ProgressBar{have: have, total: total, width: 20}
}

// WithWidth sets the bar width, caption excluded.
func (p ProgressBar) WithWidth(width int) ProgressBar {
	if width < 5 {
		width = 5
	}
	p.width = width
	return p
}

// WithStyle sets the style for the filled portion.
func (p ProgressBar) WithStyle(style lipgloss.Style) ProgressBar {
	p.style = style
	return p
}

func (p ProgressBar) Render() string {
	if p.total == 0 {
		return ""
	}
	filled := p.width * p.have / p.total
	bar := p.style.Render(strings.Repeat("█", filled)) + strings.Repeat("░", p.width-filled)
	return fmt.Sprintf("%s %d/%d healthy", bar, p.have, p.total)
}
