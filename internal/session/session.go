// Package session holds the authenticated user for the lifetime of the
// client and wraps the auth endpoints with the user-facing error messages.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/R-koma/calendar-chat/internal/api"
	"github.com/R-koma/calendar-chat/internal/model"
)

var (
	ErrLoginFailed   = errors.New("メールアドレスまたはパスワードが間違っています。")
	ErrLogoutFailed  = errors.New("ログアウトに失敗しました。")
	ErrUserFetch     = errors.New("ユーザー情報の取得に失敗しました。")
	ErrAlreadyExists = errors.New("このメールアドレスまたはユーザー名は既に登録されています。")
	ErrNotLoggedIn   = errors.New("session: not logged in")
)

// API is the slice of the REST client the session needs.
type API interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, username, email, password string) error
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Context is the client-side login session. Clear is wired to the REST
// client's unauthorized hook so an expired cookie drops the user back to the
// login view.
type Context struct {
	api API

	mu   sync.RWMutex
	user *model.User
}

func New(a API) *Context {
	return &Context{api: a}
}

// Login authenticates and loads the current user. Any failure surfaces the
// same generic message; the cause is not leaked to the caller.
func (s *Context) Login(ctx context.Context, email, password string) error {
	if err := s.api.Login(ctx, email, password); err != nil {
		return ErrLoginFailed
	}
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return ErrUserFetch
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

// Register creates the account. It does not log in; the caller prompts for
// login afterwards, matching the backend which issues no cookies on register.
func (s *Context) Register(ctx context.Context, username, email, password string) error {
	err := s.api.Register(ctx, username, email, password)
	if err == nil {
		return nil
	}
	if api.IsStatus(err, http.StatusBadRequest) {
		return ErrAlreadyExists
	}
	var se *api.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("登録に失敗しました。ステータスコード: %d", se.Code)
	}
	return fmt.Errorf("登録に失敗しました: %w", err)
}

func (s *Context) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		return ErrLogoutFailed
	}
	s.Clear()
	return nil
}

// Current returns the logged-in user.
func (s *Context) Current() (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, ErrNotLoggedIn
	}
	return s.user, nil
}

// Clear forgets the user. Called on logout and from the unauthorized hook.
func (s *Context) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}
