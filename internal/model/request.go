package model

// StreamRequest POST /stream 的请求体，首轮对话不携带 session_id
type StreamRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
}

type UpdateSessionTitleRequest struct {
	Title string `json:"title" binding:"required"`
}
