package main

import "github.com/charmbracelet/lipgloss"

// Palette is a small stylesheet for command output.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	help  lipgloss.Style
	url   lipgloss.Style
}

// DefaultPalette uses Spotify green for success lines.
func DefaultPalette() *Palette {
	return NewPalette("#7D56F4", "#1DB954", "#FF0000", "#626262")
}

func NewPalette(title, ok, err, help string) *Palette {
	return &Palette{
		title: newBold(title),
		ok:    newBold(ok),
		err:   newBold(err),
		help:  newStyle(help).Italic(true),
		url:   newStyle(title).Underline(true),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render("✓ " + s) }
func (p *Palette) Err(s string) string   { return p.err.Render("✗ " + s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }
func (p *Palette) URL(s string) string   { return p.url.Render(s) }
