package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/account"
	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/blob"
	"chatrelay/internal/config"
	"chatrelay/internal/directory"
	"chatrelay/internal/gateway"
	"chatrelay/internal/relay"
)

// Handler holds application dependencies
type Handler struct {
	Config    config.Config
	Verifier  auth.Verifier
	Accounts  *account.Service
	Relay     *relay.Service
	Directory *directory.Service
	Gateway   *gateway.Gateway
	Blobs     *blob.DiskStore
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", h.Status).Methods("GET")
	r.HandleFunc("/api/user/signup", h.Signup).Methods("POST")
	r.HandleFunc("/api/user/login", h.Login).Methods("POST")

	// 認証必須のAPI
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Require(h.Verifier, h.unauthorized))
	api.HandleFunc("/user/check", h.Check).Methods("GET")
	api.HandleFunc("/user/all", h.ListUsers).Methods("GET")
	api.HandleFunc("/user/update-profile", h.UpdateProfile).Methods("PUT")
	api.HandleFunc("/messages/users", h.ListPeers).Methods("GET")
	api.HandleFunc("/messages/send", h.SendMessage).Methods("POST")
	api.HandleFunc("/messages/{id}", h.GetMessages).Methods("GET")
	api.HandleFunc("/messages/{id}", h.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/conversations", h.StartConversation).Methods("POST")
	api.HandleFunc("/conversations", h.ListConversations).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.Gateway.HandleWebSocket).Methods("GET")

	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", h.Blobs.Handler())).Methods("GET")

	return r
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"status":      "ok",
		"connections": h.Gateway.OpenConnections(),
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r.Method+" "+r.URL.Path, err)
}

// decode limits the body and parses it into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidRequest, "Invalid request body", err)
	}
	return nil
}

// fail logs err and writes the JSON error body for it.
func (h *Handler) fail(w http.ResponseWriter, route string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		jww.ERROR.Printf("[%s] ❌ %v", route, err)
	} else {
		jww.INFO.Printf("[%s] ❌ %v", route, err)
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   apperr.PublicMessage(err),
		"code":    apperr.CodeOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
