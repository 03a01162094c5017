package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/middleware"
	"github.com/R-koma/calendar-chat/internal/repository"
	"github.com/R-koma/calendar-chat/internal/storage"
	"github.com/R-koma/calendar-chat/internal/token"
)

type AuthHandler struct {
	users  *repository.UserRepository
	tokens *token.Manager
	store  storage.TokenStore
}

func NewAuthHandler(users *repository.UserRepository, tokens *token.Manager, store storage.TokenStore) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, store: store}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("auth register hash: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if _, err := h.users.Create(r.Context(), req.Username, req.Email, string(hash)); err != nil {
		if errors.Is(err, repository.ErrExists) {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		logger.Errorf("auth register: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, http.StatusCreated, "User registered successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies the credentials and sets the cookie pair: the HttpOnly
// access token and the script-readable CSRF cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("auth login lookup: %v", err)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}

	access, csrf, err := h.tokens.Mint(user.ID)
	if err != nil {
		logger.Errorf("auth login mint: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	accessCookie, csrfCookie := h.tokens.Cookies(access, csrf)
	http.SetCookie(w, accessCookie)
	http.SetCookie(w, csrfCookie)
	writeMessage(w, http.StatusOK, "Login successful")
}

// Logout revokes the current token for its remaining lifetime and clears
// the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims != nil && claims.ExpiresAt != nil {
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining > 0 {
			if err := h.store.Revoke(r.Context(), claims.ID, remaining); err != nil {
				logger.Errorf("auth logout revoke: %v", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
	}
	accessCookie, csrfCookie := token.ClearCookies()
	http.SetCookie(w, accessCookie)
	http.SetCookie(w, csrfCookie)
	writeMessage(w, http.StatusOK, "Logout successful")
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		logger.Errorf("auth me: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
