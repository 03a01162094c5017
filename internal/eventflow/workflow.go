// Package eventflow drives the event detail screen: viewing, editing
// (creator only), inviting friends and responding to invitations. It leans
// on the directory for the month view and the friends registry for the
// invite picker.
package eventflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/R-koma/calendar-chat/internal/api"
	"github.com/R-koma/calendar-chat/internal/directory"
	"github.com/R-koma/calendar-chat/internal/friends"
	"github.com/R-koma/calendar-chat/internal/model"
)

var (
	ErrDetailFetch   = errors.New("イベントの詳細の取得に失敗しました")
	ErrUpdateFailed  = errors.New("イベントの更新に失敗しました")
	ErrInviteFailed  = errors.New("友達の招待に失敗しました")
	ErrDeleteFailed  = errors.New("イベントの削除に失敗しました")
	ErrCreateFailed  = errors.New("イベントの作成に失敗しました")
	ErrInvitesFetch  = errors.New("イベント招待の取得に失敗しました")
	ErrRespondFailed = errors.New("イベントへの参加/不参加の処理に失敗しました")
	ErrNotCreator    = errors.New("eventflow: only the creator can edit")
	ErrNoEventOpen   = errors.New("eventflow: no event open")
	ErrEmptyForm     = errors.New("イベント名と日付は必須です")
)

// Mode is which panel of the detail screen is active.
type Mode int

const (
	ModeViewing Mode = iota
	ModeEditing
	ModeInviting
)

// API is the slice of the REST client the workflow needs.
type API interface {
	EventDetail(ctx context.Context, eventID int) (*model.EventDetail, error)
	CreateEvent(ctx context.Context, req api.CreateEventRequest) error
	UpdateEvent(ctx context.Context, eventID int, req api.UpdateEventRequest) error
	DeleteEvent(ctx context.Context, eventID int) error
	InviteToEvent(ctx context.Context, eventID int, friendIDs []int) error
	EventInvites(ctx context.Context) ([]model.EventInvite, error)
	RespondToEvent(ctx context.Context, eventID int, response string) error
}

// Workflow holds the state of the event screens for one user session.
type Workflow struct {
	api      API
	dir      *directory.Directory
	registry *friends.Registry

	mu      sync.RWMutex
	mode    Mode
	detail  *model.EventDetail
	invites []model.EventInvite
}

func New(a API, dir *directory.Directory, registry *friends.Registry) *Workflow {
	return &Workflow{api: a, dir: dir, registry: registry}
}

// Open loads an event's detail fresh from the backend. The month cache is
// never trusted for the detail view.
func (w *Workflow) Open(ctx context.Context, eventID int) (*model.EventDetail, error) {
	detail, err := w.api.EventDetail(ctx, eventID)
	if err != nil {
		return nil, ErrDetailFetch
	}
	w.mu.Lock()
	w.detail = detail
	w.mode = ModeViewing
	w.mu.Unlock()
	return detail, nil
}

// Close drops the open detail.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.detail = nil
	w.mode = ModeViewing
	w.mu.Unlock()
}

// Detail returns the open event, or nil.
func (w *Workflow) Detail() *model.EventDetail {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.detail
}

func (w *Workflow) Mode() Mode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

// CanEdit reports whether user is the creator of the open event.
func (w *Workflow) CanEdit(user *model.User) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.detail != nil && user != nil && w.detail.CreatedBy == user.ID
}

// StartEdit switches to the edit panel; only the creator may.
func (w *Workflow) StartEdit(user *model.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detail == nil {
		return ErrNoEventOpen
	}
	if user == nil || w.detail.CreatedBy != user.ID {
		return ErrNotCreator
	}
	w.mode = ModeEditing
	return nil
}

// StartInvite switches to the invite panel.
func (w *Workflow) StartInvite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detail == nil {
		return ErrNoEventOpen
	}
	w.mode = ModeInviting
	return nil
}

// Update pushes edits and reconciles the open detail locally.
func (w *Workflow) Update(ctx context.Context, req api.UpdateEventRequest) error {
	w.mu.RLock()
	detail := w.detail
	w.mu.RUnlock()
	if detail == nil {
		return ErrNoEventOpen
	}
	if err := w.api.UpdateEvent(ctx, detail.ID, req); err != nil {
		return ErrUpdateFailed
	}
	w.mu.Lock()
	if w.detail != nil && w.detail.ID == detail.ID {
		if req.EventName != nil {
			w.detail.EventName = *req.EventName
		}
		if req.MeetingTime != nil {
			w.detail.MeetingTime = *req.MeetingTime
		}
		if req.MeetingPlace != nil {
			w.detail.MeetingPlace = *req.MeetingPlace
		}
		if req.Description != nil {
			w.detail.Description = *req.Description
		}
		w.mode = ModeViewing
	}
	w.mu.Unlock()
	return nil
}

// InviteCandidates filters the friend list down to users who are neither
// participants nor already invited to the open event.
func (w *Workflow) InviteCandidates() []model.User {
	w.mu.RLock()
	detail := w.detail
	w.mu.RUnlock()
	if detail == nil {
		return nil
	}
	taken := make(map[int]struct{}, len(detail.Participants)+len(detail.InvitedFriends))
	for _, p := range detail.Participants {
		taken[p.ID] = struct{}{}
	}
	for _, inv := range detail.InvitedFriends {
		taken[inv.ID] = struct{}{}
	}
	var out []model.User
	for _, f := range w.registry.List() {
		if _, ok := taken[f.ID]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Invite sends the invitations and, after the backend acknowledges, appends
// the selected friends to the open event's invited list.
func (w *Workflow) Invite(ctx context.Context, selected []model.User) error {
	w.mu.RLock()
	detail := w.detail
	w.mu.RUnlock()
	if detail == nil {
		return ErrNoEventOpen
	}
	if len(selected) == 0 {
		return nil
	}
	ids := make([]int, len(selected))
	for i, u := range selected {
		ids[i] = u.ID
	}
	if err := w.api.InviteToEvent(ctx, detail.ID, ids); err != nil {
		return ErrInviteFailed
	}
	w.mu.Lock()
	if w.detail != nil && w.detail.ID == detail.ID {
		w.detail.InvitedFriends = append(w.detail.InvitedFriends, selected...)
		w.mode = ModeViewing
	}
	w.mu.Unlock()
	return nil
}

// Delete removes the open event and drops it from the month view locally.
func (w *Workflow) Delete(ctx context.Context) error {
	w.mu.RLock()
	detail := w.detail
	w.mu.RUnlock()
	if detail == nil {
		return ErrNoEventOpen
	}
	if err := w.api.DeleteEvent(ctx, detail.ID); err != nil {
		return ErrDeleteFailed
	}
	w.dir.Remove(detail.ID)
	w.Close()
	return nil
}

// CreateForm collects the fields of a new event plus the selected invitees.
type CreateForm struct {
	EventName    string
	EventDate    string
	MeetingTime  string
	MeetingPlace string
	Description  string
	Invitees     []model.User
}

func (f *CreateForm) Reset() {
	*f = CreateForm{}
}

// Create submits the form, resets it and refreshes the month view so the
// new event appears with its server-assigned id.
func (w *Workflow) Create(ctx context.Context, form *CreateForm) error {
	if strings.TrimSpace(form.EventName) == "" || strings.TrimSpace(form.EventDate) == "" {
		return ErrEmptyForm
	}
	req := api.CreateEventRequest{
		EventName:    form.EventName,
		EventDate:    form.EventDate,
		MeetingTime:  form.MeetingTime,
		MeetingPlace: form.MeetingPlace,
		Description:  form.Description,
	}
	for _, u := range form.Invitees {
		req.Invitees = append(req.Invitees, u.ID)
	}
	if err := w.api.CreateEvent(ctx, req); err != nil {
		return ErrCreateFailed
	}
	form.Reset()
	return w.dir.Refresh(ctx)
}

// LoadInvites fetches the pending invitations for the user.
func (w *Workflow) LoadInvites(ctx context.Context) ([]model.EventInvite, error) {
	invites, err := w.api.EventInvites(ctx)
	if err != nil {
		return nil, ErrInvitesFetch
	}
	w.mu.Lock()
	w.invites = invites
	w.mu.Unlock()
	return invites, nil
}

// Invites returns the cached pending invitations.
func (w *Workflow) Invites() []model.EventInvite {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.EventInvite, len(w.invites))
	copy(out, w.invites)
	return out
}

// Respond accepts or declines one invitation, removes it locally and on
// accept refreshes the month so the event shows up.
func (w *Workflow) Respond(ctx context.Context, eventID int, accepted bool) error {
	response := model.ResponseDeclined
	if accepted {
		response = model.ResponseAccepted
	}
	if err := w.api.RespondToEvent(ctx, eventID, response); err != nil {
		return ErrRespondFailed
	}
	w.mu.Lock()
	for i, inv := range w.invites {
		if inv.ID == eventID {
			w.invites = append(w.invites[:i], w.invites[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	if accepted {
		return w.dir.Refresh(ctx)
	}
	return nil
}
