package render

import "crimestats-chat/internal/model"

// Display 渲染层：消息列表 + 流式占位元素。
// 由会话控制器在单个响应周期内按顺序调用。
type Display interface {
	AppendMessage(msg model.Message)
	ShowPlaceholder()
	ClearPlaceholder()
	AppendBlock(block model.Block)
	// Finalize 用最终的 bot 消息替换占位元素，并挂上可选的来源说明
	Finalize(msg model.Message)
	Reset()
}

// Apply 把 reducer 产出的渲染指令依次交给 display
func Apply(d Display, ops []model.RenderOp) {
	for _, op := range ops {
		switch op.Kind {
		case model.OpClearPlaceholder:
			d.ClearPlaceholder()
		case model.OpAppendBlock:
			d.AppendBlock(op.Block)
		}
	}
}

// NopDisplay 不需要界面时使用
type NopDisplay struct{}

func (NopDisplay) AppendMessage(model.Message) {}
func (NopDisplay) ShowPlaceholder()            {}
func (NopDisplay) ClearPlaceholder()           {}
func (NopDisplay) AppendBlock(model.Block)     {}
func (NopDisplay) Finalize(model.Message)      {}
func (NopDisplay) Reset()                      {}
