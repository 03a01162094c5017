package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/R-koma/calendar-chat/internal/api"
	"github.com/R-koma/calendar-chat/internal/model"
)

type stubAPI struct {
	loginErr    error
	registerErr error
	logoutErr   error
	user        *model.User
	userErr     error
}

func (s *stubAPI) Login(context.Context, string, string) error { return s.loginErr }
func (s *stubAPI) Register(context.Context, string, string, string) error {
	return s.registerErr
}
func (s *stubAPI) Logout(context.Context) error { return s.logoutErr }
func (s *stubAPI) CurrentUser(context.Context) (*model.User, error) {
	return s.user, s.userErr
}

func TestLoginLoadsUser(t *testing.T) {
	s := New(&stubAPI{user: &model.User{ID: 1, Username: "rin"}})
	if err := s.Login(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	user, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if user.Username != "rin" {
		t.Fatalf("user = %+v", user)
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	s := New(&stubAPI{loginErr: &api.StatusError{Code: http.StatusUnauthorized}})
	err := s.Login(context.Background(), "a@example.com", "bad")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	if _, err := s.Current(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatal("failed login must not leave a user behind")
	}
}

func TestRegisterMapsConflictTo400Message(t *testing.T) {
	s := New(&stubAPI{registerErr: &api.StatusError{Code: http.StatusBadRequest}})
	err := s.Register(context.Background(), "rin", "a@example.com", "pw")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterOtherStatusKeepsCode(t *testing.T) {
	s := New(&stubAPI{registerErr: &api.StatusError{Code: http.StatusInternalServerError}})
	err := s.Register(context.Background(), "rin", "a@example.com", "pw")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != "登録に失敗しました。ステータスコード: 500" {
		t.Fatalf("message = %q", got)
	}
}

func TestLogoutClearsUser(t *testing.T) {
	s := New(&stubAPI{user: &model.User{ID: 1}})
	if err := s.Login(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.Current(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatal("user survived logout")
	}
}

func TestClearWiredToUnauthorizedHook(t *testing.T) {
	s := New(&stubAPI{user: &model.User{ID: 1}})
	if err := s.Login(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	s.Clear()
	if _, err := s.Current(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatal("Clear did not drop the user")
	}
}
