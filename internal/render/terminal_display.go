package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"
)

const (
	terminalPlaceholder = "..."
	clearLine           = "\r\033[K"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true)
	updateStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	sourceStyle = lipgloss.NewStyle().Faint(true)
)

// TerminalDisplay 命令行下的 Display：流式内容直接写出，结束后按 markdown 重排
type TerminalDisplay struct {
	mu       sync.Mutex
	out      io.Writer
	markdown *glamour.TermRenderer
	strip    *bluemonday.Policy
	styled   bool

	pending  bool
	streamed strings.Builder
}

// NewTerminalDisplay styled 为 false 时不输出任何 ANSI 样式，适合管道和测试
func NewTerminalDisplay(out io.Writer, width int, styled bool) (*TerminalDisplay, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if styled {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath("notty"))
	}

	markdown, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	return &TerminalDisplay{
		out:      out,
		markdown: markdown,
		strip:    bluemonday.StrictPolicy(),
		styled:   styled,
	}, nil
}

func (d *TerminalDisplay) AppendMessage(msg model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if msg.IsUser() {
		fmt.Fprintln(d.out, d.style(userStyle, "> "+d.plain(msg.Content)))
		return
	}
	d.writeFinal(msg)
}

func (d *TerminalDisplay) ShowPlaceholder() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streamed.Reset()
	d.pending = true
	fmt.Fprint(d.out, terminalPlaceholder)
}

func (d *TerminalDisplay) ClearPlaceholder() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearPending()
}

func (d *TerminalDisplay) AppendBlock(block model.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearPending()
	text := d.plain(block.Content)
	if block.Type == model.ContentUpdate {
		fmt.Fprintln(d.out, d.style(updateStyle, text))
		return
	}
	d.streamed.WriteString(text)
	fmt.Fprint(d.out, text)
}

func (d *TerminalDisplay) Finalize(msg model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearPending()
	streamed := d.streamed.String()
	d.streamed.Reset()

	switch {
	case streamed == "":
		d.writeFinal(msg)
	case streamed != d.plain(msg.Content):
		// 流式内容和最终结果不一致（比如错误提示），重新输出最终结果
		fmt.Fprintln(d.out)
		d.writeFinal(msg)
	default:
		fmt.Fprintln(d.out)
		d.writeSource(msg)
	}
}

func (d *TerminalDisplay) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearPending()
	d.streamed.Reset()
	fmt.Fprintln(d.out, d.style(sourceStyle, "-- new conversation --"))
}

func (d *TerminalDisplay) clearPending() {
	if d.pending {
		fmt.Fprint(d.out, clearLine)
		d.pending = false
	}
}

func (d *TerminalDisplay) writeFinal(msg model.Message) {
	text := d.plain(msg.Content)
	if model.FormatOf(text) == model.FormatMarkdown {
		if rendered, err := d.markdown.Render(text); err == nil {
			text = rendered
		} else {
			logger.Warnf("terminal markdown rendering failed: %v", err)
		}
	}
	fmt.Fprintln(d.out, strings.TrimRight(text, "\n"))
	d.writeSource(msg)
}

func (d *TerminalDisplay) writeSource(msg model.Message) {
	if msg.HasSource() {
		fmt.Fprintln(d.out, d.style(sourceStyle, "source: "+d.plain(msg.Source)))
	}
}

// plain 去掉 HTML 标签，终端里只保留文本
func (d *TerminalDisplay) plain(s string) string {
	return html.UnescapeString(d.strip.Sanitize(s))
}

func (d *TerminalDisplay) style(style lipgloss.Style, s string) string {
	if !d.styled {
		return s
	}
	return style.Render(s)
}
