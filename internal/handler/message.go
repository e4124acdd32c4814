package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/blob"
	"chatrelay/internal/model"
	"chatrelay/internal/relay"
)

type sendRequest struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Image      string `json:"image"`
}

// ListPeers handles GET /api/messages/users
// 会話相手の一覧と未読数を返す
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	const route = "GET /api/messages/users"
	userID := auth.UserID(r.Context())

	peers, err := h.Directory.ListConversationPeers(r.Context(), userID)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	users := make([]model.User, 0, len(peers))
	unseen := make(map[string]int, len(peers))
	for _, p := range peers {
		users = append(users, p.User)
		if p.UnseenCount > 0 {
			unseen[p.User.ID] = p.UnseenCount
		}
	}

	jww.DEBUG.Printf("[%s] ✅ Returned %d peers for %s", route, len(peers), userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"users":          users,
		"unseenMessages": unseen,
	})
}

// GetMessages handles GET /api/messages/{id}
// 履歴を返し、受信分を既読にする
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["id"]
	route := "GET /api/messages/" + peerID
	userID := auth.UserID(r.Context())

	msgs, err := h.Directory.FetchHistory(r.Context(), userID, peerID)
	if err != nil {
		h.fail(w, route, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	jww.DEBUG.Printf("[%s] ✅ Returned %d messages", route, len(msgs))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

// SendMessage handles POST /api/messages/send
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	const route = "POST /api/messages/send"
	userID := auth.UserID(r.Context())

	var req sendRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, route, err)
		return
	}

	send := relay.SendRequest{SenderID: userID, ReceiverID: req.ReceiverID, Text: req.Text}
	if req.Image != "" {
		img, err := blob.DecodeDataURL(req.Image)
		if err != nil {
			h.fail(w, route, apperr.Wrap(apperr.CodeInvalidRequest, "invalid image payload", err))
			return
		}
		send.Image = img
	}

	res, err := h.Relay.Send(r.Context(), send)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Created message: ID=%s, delivered to %d connections", route, res.Message.ID, res.Delivered)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "newMessage": res.Message})
}

// DeleteConversation handles DELETE /api/messages/{id}
// 双方向のメッセージを物理削除する
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["id"]
	route := "DELETE /api/messages/" + peerID
	userID := auth.UserID(r.Context())

	n, err := h.Directory.DeleteConversation(r.Context(), userID, peerID)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Deleted %d messages", route, n)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Chat deleted permanently",
		"deleted": n,
	})
}
