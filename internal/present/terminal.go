package present

import (
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	indicatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Underline(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const (
	indicatorText = "● generating…"
	caretText     = "▍"
)

type TerminalOptions struct {
	// Live writes fragments as they arrive; otherwise only the final frame is printed.
	Live          bool
	ShowReasoning bool
	Markdown      bool
	WordWrap      int
}

// TerminalRenderer is a Sink that writes frames to a terminal.
type TerminalRenderer struct {
	out  io.Writer
	opts TerminalOptions
	md   *glamour.TermRenderer

	indicated bool
	reasoning string
	answer    string
	answering bool
}

func NewTerminalRenderer(out io.Writer, opts TerminalOptions) *TerminalRenderer {
	r := &TerminalRenderer{out: out, opts: opts}
	if opts.Markdown {
		wrap := opts.WordWrap
		if wrap <= 0 {
			wrap = 80
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

func (r *TerminalRenderer) Render(f Frame) error {
	if r.opts.Live {
		return r.renderLive(f)
	}
	if !f.Complete {
		return nil
	}
	return r.renderFinal(f)
}

func (r *TerminalRenderer) renderLive(f Frame) error {
	var b strings.Builder
	if f.ShowIndicator && !r.indicated {
		b.WriteString(indicatorStyle.Render(indicatorText))
		b.WriteString("\n")
		r.indicated = true
	}
	if r.opts.ShowReasoning && f.ShowReasoning {
		b.WriteString(styleLines(reasoningStyle, tail(r.reasoning, f.Reasoning)))
		r.reasoning = f.Reasoning
	}

	switch f.Regime {
	case RegimeAnswer:
		if f.Answer != "" && !r.answering {
			if r.reasoning != "" {
				b.WriteString("\n\n")
			}
			r.answering = true
		}
		if r.answering {
			b.WriteString(tail(r.answer, f.Answer))
			r.answer = f.Answer
		}
	case RegimeEmpty:
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(f.Notice))
	}
	if f.Complete {
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *TerminalRenderer) renderFinal(f Frame) error {
	var b strings.Builder
	if r.opts.ShowReasoning && f.ShowReasoning {
		b.WriteString(labelStyle.Render("Reasoning"))
		b.WriteString("\n")
		b.WriteString(styleLines(reasoningStyle, strings.TrimSpace(f.Reasoning)))
		b.WriteString("\n\n")
	}
	switch f.Regime {
	case RegimeEmpty:
		b.WriteString(noticeStyle.Render(f.Notice))
	case RegimeReasoning:
		b.WriteString(indicatorStyle.Render(indicatorText))
	default:
		b.WriteString(r.markdown(f.Answer))
		if f.ShowCaret {
			b.WriteString(caretText)
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(r.out, b.String())
	return err
}

// markdown renders s with glamour, falling back to plain text.
func (r *TerminalRenderer) markdown(s string) string {
	if r.md == nil || s == "" {
		return s
	}
	out, err := r.md.Render(s)
	if err != nil {
		return s
	}
	return strings.TrimRight(out, "\n")
}

// tail returns the part of next not yet written. When next does not extend
// prev (which the splitter never produces), it is written again on a new line.
func tail(prev, next string) string {
	if strings.HasPrefix(next, prev) {
		return next[len(prev):]
	}
	return "\n" + next
}

// styleLines styles each line separately so the style does not pad lines to a common width.
func styleLines(style lipgloss.Style, s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
