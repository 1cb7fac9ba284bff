package v2

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/src/core/rag"
)

type chatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type generateCompletionRequest struct {
	Messages []chatMessage `json:"messages" binding:"required,min=1,dive"`
}

type streamRequest struct {
	Message string        `json:"message" binding:"required"`
	History []chatMessage `json:"history" binding:"dive"`
}

type completionResponse struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Sources []source `json:"sources"`
}

type source struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

func toSources(k rag.Knowledge) []source {
	out := make([]source, len(k))
	for i, c := range k {
		out[i] = source{
			ID:      c.ID,
			Source:  c.Source(),
			Page:    c.Page(),
			Score:   c.Score,
			Content: c.Content,
		}
	}
	return out
}

func toTurns(messages []chatMessage) []rag.Turn {
	turns := make([]rag.Turn, len(messages))
	for i, m := range messages {
		turns[i] = rag.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}

// GenerateCompletion godoc
// @Summary Answer the last user message in one response
// @Tags chat
// @Accept json
// @Produce json
// @Param body body generateCompletionRequest true "Conversation, oldest message first"
// @Success 200 {object} completionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /chat/completions [post]
func (h *Handler) GenerateCompletion(c *gin.Context) {
	var req generateCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	// Validate that the last message is from the user
	lastMsg := req.Messages[len(req.Messages)-1]
	if lastMsg.Role != rag.RoleUser {
		sendError(c, http.StatusBadRequest, fmt.Errorf("last message must be from user"))
		return
	}

	reply, err := h.chatService.Ask(c.Request.Context(), rag.Query{
		Message: lastMsg.Content,
		History: toTurns(req.Messages[:len(req.Messages)-1]),
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	text, err := reply.Stream.Wait()
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, completionResponse{
		Role:    rag.RoleAssistant,
		Content: text,
		Sources: toSources(reply.Knowledge),
	})
}

// StreamCompletion godoc
// @Summary Stream the answer to a message as server-sent events
// @Description Emits one "sources" event, then "delta" events carrying answer
// @Description fragments in order, then "done" with the full text or "error".
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param body body streamRequest true "Message and prior conversation"
// @Failure 400 {object} ErrorResponse
// @Router /chat/stream [post]
func (h *Handler) StreamCompletion(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	reply, err := h.chatService.Ask(c.Request.Context(), rag.Query{
		Message: req.Message,
		History: toTurns(req.History),
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	defer reply.Stream.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("sources", toSources(reply.Knowledge))
	c.Writer.Flush()

	// The stream ends on its own when the client goes away, since Ask runs
	// on the request context.
	for inc := range reply.Stream.Increments() {
		c.SSEvent("delta", gin.H{"fragment": inc.Fragment})
		c.Writer.Flush()
	}

	if err := reply.Stream.Err(); err != nil {
		_, body := errorResponse(http.StatusInternalServerError, err)
		c.SSEvent("error", body)
		return
	}
	c.SSEvent("done", gin.H{"text": reply.Stream.Text()})
}
