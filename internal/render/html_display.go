package render

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"crimestats-chat/internal/model"
)

const typingIndicator = `<div class="typing-indicator"><span></span><span></span><span></span></div>`

type Element struct {
	Role    model.Role
	HTML    string
	Pending bool // 流式占位元素
}

// HTMLDisplay 以清洗后的 HTML 片段维护消息列表
type HTMLDisplay struct {
	mu          sync.Mutex
	renderer    *Renderer
	elements    []Element
	placeholder int
}

func NewHTMLDisplay(renderer *Renderer) *HTMLDisplay {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &HTMLDisplay{
		renderer:    renderer,
		placeholder: -1,
	}
}

func (d *HTMLDisplay) AppendMessage(msg model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elements = append(d.elements, Element{Role: msg.Role, HTML: d.renderMessage(msg)})
}

func (d *HTMLDisplay) ShowPlaceholder() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elements = append(d.elements, Element{Role: model.RoleBot, HTML: typingIndicator, Pending: true})
	d.placeholder = len(d.elements) - 1
}

func (d *HTMLDisplay) ClearPlaceholder() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.placeholder >= 0 {
		d.elements[d.placeholder].HTML = ""
	}
}

func (d *HTMLDisplay) AppendBlock(block model.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.placeholder < 0 {
		return
	}
	d.elements[d.placeholder].HTML += fmt.Sprintf(`<div class="chunk chunk-%s">%s</div>`,
		block.Type, d.renderer.Block(block))
}

func (d *HTMLDisplay) Finalize(msg model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	element := Element{Role: msg.Role, HTML: d.renderMessage(msg)}
	if d.placeholder >= 0 {
		d.elements[d.placeholder] = element
		d.placeholder = -1
		return
	}
	d.elements = append(d.elements, element)
}

func (d *HTMLDisplay) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elements = nil
	d.placeholder = -1
}

func (d *HTMLDisplay) Elements() []Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Element, len(d.elements))
	copy(result, d.elements)
	return result
}

func (d *HTMLDisplay) HTML() string {
	var b strings.Builder
	for _, el := range d.Elements() {
		fmt.Fprintf(&b, `<div class="message %s-message">%s</div>`, el.Role, el.HTML)
	}
	return b.String()
}

// renderMessage 用户输入按纯文本，bot 回复按 markdown
func (d *HTMLDisplay) renderMessage(msg model.Message) string {
	if msg.IsUser() {
		return d.renderer.Text(msg.Content)
	}

	body := d.renderer.Block(model.Block{Content: msg.Content, Format: model.FormatOf(msg.Content)})
	if msg.HasSource() {
		body += fmt.Sprintf(`<span class="source-info" title="%s">&#9432;</span>`, html.EscapeString(msg.Source))
	}
	return body
}
