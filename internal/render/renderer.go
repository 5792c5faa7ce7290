package render

import (
	"bytes"
	"html"

	"crimestats-chat/internal/model"
	"crimestats-chat/pkg/logger"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer markdown -> 清洗后的 HTML；任何内容都不会未经清洗直接输出
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func NewRenderer() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

func (r *Renderer) Markdown(source string) string {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		logger.Warnf("markdown conversion failed, falling back to text: %v", err)
		return r.Text(source)
	}
	return r.policy.Sanitize(buf.String())
}

// Text 纯文本插入，等价于 textContent
func (r *Renderer) Text(source string) string {
	return html.EscapeString(source)
}

func (r *Renderer) Block(block model.Block) string {
	if block.Format == model.FormatText {
		return r.Text(block.Content)
	}
	return r.Markdown(block.Content)
}

// Sanitize 对已经是 HTML 的片段做一次清洗
func (r *Renderer) Sanitize(fragment string) string {
	return r.policy.Sanitize(fragment)
}
