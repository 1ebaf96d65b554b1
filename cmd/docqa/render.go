package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/seanblong/docqa/pkg/models"
	"golang.org/x/term"
)

// printer writes answers either as plain text or, on a terminal, as
// rendered markdown.
type printer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	heading  lipgloss.Style
	source   lipgloss.Style
}

func newPrinter(out io.Writer) *printer {
	p := &printer{out: out}
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p
	}
	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		p.markdown = r
	}
	p.heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	p.source = lipgloss.NewStyle().Faint(true)
	return p
}

func (p *printer) styled() bool { return p.markdown != nil }

func (p *printer) title(s string) string {
	if p.styled() {
		return p.heading.Render(s)
	}
	return s
}

func (p *printer) result(res models.QueryResult) {
	fmt.Fprintf(p.out, "\n%s\n", p.title("Answer:"))
	answer := res.AnswerText
	if p.styled() {
		if rendered, err := p.markdown.Render(answer); err == nil {
			answer = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintln(p.out, answer)

	if len(res.CitedSources) == 0 {
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", p.title("Sources:"))
	for i, c := range res.CitedSources {
		fmt.Fprintf(p.out, "%d. %s\n", i+1, c.Filename)
		if c.Excerpt != "" {
			excerpt := "   " + strings.ReplaceAll(c.Excerpt, "\n", " ")
			if p.styled() {
				excerpt = p.source.Render(excerpt)
			}
			fmt.Fprintln(p.out, excerpt)
		}
	}
}
