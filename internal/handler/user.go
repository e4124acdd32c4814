package handler

import (
	"io"
	"mime"
	"net/http"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/account"
	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/blob"
)

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// Signup handles POST /api/user/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	const route = "POST /api/user/signup"
	jww.DEBUG.Printf("[%s] Request received from %s", route, r.RemoteAddr)

	var req signupRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, route, err)
		return
	}

	sess, err := h.Accounts.Signup(r.Context(), account.SignupCommand{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Account created: ID=%s", route, sess.User.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"userData": sess.User,
		"token":    sess.Token,
		"message":  "Account created successfully",
	})
}

// Login handles POST /api/user/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const route = "POST /api/user/login"

	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, route, err)
		return
	}

	sess, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Logged in: ID=%s", route, sess.User.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"userData": sess.User,
		"token":    sess.Token,
		"message":  "Login successful",
	})
}

// Check handles GET /api/user/check
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "GET /api/user/check", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

// ListUsers handles GET /api/user/all?search=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	const route = "GET /api/user/all"

	users, err := h.Accounts.Search(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.DEBUG.Printf("[%s] ✅ Returned %d users", route, len(users))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

// UpdateProfile handles PUT /api/user/update-profile
// multipart/form-data（profilePicファイル）とJSON（base64）の両方を受け付ける
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	const route = "PUT /api/user/update-profile"
	userID := auth.UserID(r.Context())

	var cmd account.ProfileCommand
	var err error
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		cmd, err = h.profileFromForm(w, r)
	} else {
		cmd, err = h.profileFromJSON(w, r)
	}
	if err != nil {
		h.fail(w, route, err)
		return
	}

	u, err := h.Accounts.UpdateProfile(r.Context(), userID, cmd)
	if err != nil {
		h.fail(w, route, err)
		return
	}

	jww.INFO.Printf("[%s] ✅ Updated profile: ID=%s", route, userID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (h *Handler) profileFromJSON(w http.ResponseWriter, r *http.Request) (account.ProfileCommand, error) {
	var req profileRequest
	if err := h.decode(w, r, &req); err != nil {
		return account.ProfileCommand{}, err
	}

	cmd := account.ProfileCommand{FullName: req.FullName, Bio: req.Bio}
	if req.ProfilePic != "" {
		pic, err := blob.DecodeDataURL(req.ProfilePic)
		if err != nil {
			return cmd, apperr.Wrap(apperr.CodeInvalidRequest, "invalid profilePic", err)
		}
		cmd.ProfilePic = pic
	}
	return cmd, nil
}

func (h *Handler) profileFromForm(w http.ResponseWriter, r *http.Request) (account.ProfileCommand, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	if err := r.ParseMultipartForm(h.Config.MaxBodyBytes); err != nil {
		return account.ProfileCommand{}, apperr.Wrap(apperr.CodeInvalidRequest, "Invalid request body", err)
	}
	defer r.MultipartForm.RemoveAll()

	cmd := account.ProfileCommand{
		FullName: r.FormValue("fullName"),
		Bio:      r.FormValue("bio"),
	}

	file, _, err := r.FormFile("profilePic")
	if errors.Is(err, http.ErrMissingFile) {
		return cmd, nil
	}
	if err != nil {
		return cmd, apperr.Wrap(apperr.CodeInvalidRequest, "invalid profilePic", err)
	}
	defer file.Close()

	pic, err := io.ReadAll(file)
	if err != nil {
		return cmd, apperr.Wrap(apperr.CodeInvalidRequest, "invalid profilePic", err)
	}
	cmd.ProfilePic = pic
	return cmd, nil
}
