package handler

import (
	"net/http"

	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/auth"
)

type conversationRequest struct {
	ReceiverID string `json:"receiverId"`
}

// StartConversation handles POST /api/conversations
// 既存の会話があればそれを返す
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	const route = "POST /api/conversations"
	userID := auth.UserID(r.Context())

	var req conversationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, route, err)
		return
	}

	c, err := h.Directory.StartConversation(r.Context(), userID, req.ReceiverID)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Conversation %s between %s and %s", route, c.ID, userID, req.ReceiverID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": c})
}

// ListConversations handles GET /api/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	const route = "GET /api/conversations"

	convs, err := h.Directory.ListConversations(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.DEBUG.Printf("[%s] ✅ Returned %d conversations", route, len(convs))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": convs})
}
