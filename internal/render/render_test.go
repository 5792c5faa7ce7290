package render

import (
	"bytes"
	"strings"
	"testing"

	"crimestats-chat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer(t *testing.T) {
	r := NewRenderer()

	t.Run("should render markdown", func(t *testing.T) {
		out := r.Markdown("**42** thefts")
		assert.Contains(t, out, "<strong>42</strong>")
	})

	t.Run("should strip scripts from markdown output", func(t *testing.T) {
		out := r.Markdown("hi <script>alert(1)</script>")
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, "hi")
	})

	t.Run("should escape plain text", func(t *testing.T) {
		assert.Equal(t, "&lt;b&gt;42&lt;/b&gt;", r.Text("<b>42</b>"))
	})

	t.Run("should pick format per block", func(t *testing.T) {
		assert.Equal(t, "42", r.Block(model.Block{Content: "42", Format: model.FormatText}))
		assert.Contains(t, r.Block(model.Block{Content: "# Title", Format: model.FormatMarkdown}), "<h1")
	})

	t.Run("should add rel nofollow to links", func(t *testing.T) {
		out := r.Markdown("[data](https://example.com)")
		assert.Contains(t, out, `rel="nofollow`)
	})
}

type recordingDisplay struct {
	calls []string
}

func (d *recordingDisplay) AppendMessage(msg model.Message) { d.calls = append(d.calls, "message") }
func (d *recordingDisplay) ShowPlaceholder()                { d.calls = append(d.calls, "show") }
func (d *recordingDisplay) ClearPlaceholder()               { d.calls = append(d.calls, "clear") }
func (d *recordingDisplay) AppendBlock(b model.Block)       { d.calls = append(d.calls, "block:"+b.Content) }
func (d *recordingDisplay) Finalize(msg model.Message)      { d.calls = append(d.calls, "final") }
func (d *recordingDisplay) Reset()                          { d.calls = append(d.calls, "reset") }

func TestApply(t *testing.T) {
	d := &recordingDisplay{}

	Apply(d, []model.RenderOp{
		{Kind: model.OpClearPlaceholder},
		{Kind: model.OpAppendBlock, Block: model.Block{Content: "a"}},
		{Kind: model.OpAppendBlock, Block: model.Block{Content: "b"}},
	})

	assert.Equal(t, []string{"clear", "block:a", "block:b"}, d.calls)
}

func TestHTMLDisplay(t *testing.T) {
	t.Run("should replace the placeholder with the final message", func(t *testing.T) {
		d := NewHTMLDisplay(nil)

		d.AppendMessage(model.NewUserMessage("how many?"))
		d.ShowPlaceholder()
		d.ClearPlaceholder()
		d.AppendBlock(model.Block{Content: "42", Type: model.ContentMessage, Format: model.FormatText})
		require.True(t, d.Elements()[1].Pending)

		d.Finalize(model.NewBotMessage("42", ""))

		elements := d.Elements()
		require.Len(t, elements, 2)
		assert.Equal(t, model.RoleUser, elements[0].Role)
		assert.Equal(t, "42", elements[1].HTML)
		assert.False(t, elements[1].Pending)
	})

	t.Run("should render user input as text", func(t *testing.T) {
		d := NewHTMLDisplay(nil)

		d.AppendMessage(model.NewUserMessage("<img src=x onerror=alert(1)>"))

		assert.NotContains(t, d.HTML(), "<img")
		assert.Contains(t, d.HTML(), "user-message")
	})

	t.Run("should escape the source note", func(t *testing.T) {
		d := NewHTMLDisplay(nil)

		d.Finalize(model.NewBotMessage("answer", `"><script>x</script>`))

		out := d.HTML()
		assert.Contains(t, out, "source-info")
		assert.NotContains(t, out, "<script>")
	})

	t.Run("should tag update chunks", func(t *testing.T) {
		d := NewHTMLDisplay(nil)

		d.ShowPlaceholder()
		d.ClearPlaceholder()
		d.AppendBlock(model.Block{Content: "Searching", Type: model.ContentUpdate, Format: model.FormatMarkdown})

		assert.Contains(t, d.Elements()[0].HTML, "chunk-update")
	})

	t.Run("should drop blocks without a placeholder and reset", func(t *testing.T) {
		d := NewHTMLDisplay(nil)

		d.AppendBlock(model.Block{Content: "orphan"})
		assert.Empty(t, d.Elements())

		d.AppendMessage(model.NewUserMessage("hi"))
		d.Reset()
		assert.Empty(t, d.Elements())
	})
}

func TestTerminalDisplay(t *testing.T) {
	newDisplay := func(t *testing.T) (*TerminalDisplay, *bytes.Buffer) {
		var buf bytes.Buffer
		d, err := NewTerminalDisplay(&buf, 80, false)
		require.NoError(t, err)
		return d, &buf
	}

	t.Run("should stream text and print the source", func(t *testing.T) {
		d, buf := newDisplay(t)

		d.ShowPlaceholder()
		d.ClearPlaceholder()
		d.AppendBlock(model.Block{Content: "Hello ", Type: model.ContentMessage})
		d.AppendBlock(model.Block{Content: "world", Type: model.ContentMessage})
		d.Finalize(model.NewBotMessage("Hello world", "Police API"))

		out := buf.String()
		assert.Contains(t, out, clearLine)
		assert.Contains(t, out, "Hello world\n")
		assert.Contains(t, out, "source: Police API")
		assert.Equal(t, 1, strings.Count(out, "Hello world"))
	})

	t.Run("should print the final message when nothing was streamed", func(t *testing.T) {
		d, buf := newDisplay(t)

		d.ShowPlaceholder()
		d.Finalize(model.NewBotMessage(model.NoResponseNotice, ""))

		assert.Contains(t, buf.String(), clearLine)
		assert.Contains(t, buf.String(), "response")
	})

	t.Run("should reprint when the final message differs from the stream", func(t *testing.T) {
		d, buf := newDisplay(t)

		d.ShowPlaceholder()
		d.AppendBlock(model.Block{Content: "partial", Type: model.ContentMessage})
		d.Finalize(model.NewBotMessage("42", ""))

		out := buf.String()
		assert.Contains(t, out, "partial\n")
		assert.True(t, strings.HasSuffix(out, "42\n"))
	})

	t.Run("should strip markup from user input", func(t *testing.T) {
		d, buf := newDisplay(t)

		d.AppendMessage(model.NewUserMessage("<b>burglary</b> stats"))

		assert.Equal(t, "> burglary stats\n", buf.String())
	})
}
