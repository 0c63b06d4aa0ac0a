package http

// PostMessageRequest is the body of POST /events/{id}/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}
