package eventflow

import (
	"context"
	"errors"
	"testing"

	"github.com/R-koma/calendar-chat/internal/api"
	"github.com/R-koma/calendar-chat/internal/directory"
	"github.com/R-koma/calendar-chat/internal/friends"
	"github.com/R-koma/calendar-chat/internal/model"
)

// stubAPI fakes both the workflow's API surface and the fetchers the
// directory and friends registry dial through.
type stubAPI struct {
	detail        map[int]*model.EventDetail
	invites       []model.EventInvite
	friends       []model.User
	monthEvents   []model.Event
	monthFetches  int
	created       []api.CreateEventRequest
	updated       map[int]api.UpdateEventRequest
	deleted       []int
	invitedIDs    map[int][]int
	responded     map[int]string
	failCreate    bool
	failInvite    bool
	failRespond   bool
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		detail:     make(map[int]*model.EventDetail),
		updated:    make(map[int]api.UpdateEventRequest),
		invitedIDs: make(map[int][]int),
		responded:  make(map[int]string),
	}
}

func (s *stubAPI) EventDetail(_ context.Context, eventID int) (*model.EventDetail, error) {
	d, ok := s.detail[eventID]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *d
	return &cp, nil
}

func (s *stubAPI) CreateEvent(_ context.Context, req api.CreateEventRequest) error {
	if s.failCreate {
		return errors.New("boom")
	}
	s.created = append(s.created, req)
	return nil
}

func (s *stubAPI) UpdateEvent(_ context.Context, eventID int, req api.UpdateEventRequest) error {
	s.updated[eventID] = req
	return nil
}

func (s *stubAPI) DeleteEvent(_ context.Context, eventID int) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}

func (s *stubAPI) InviteToEvent(_ context.Context, eventID int, friendIDs []int) error {
	if s.failInvite {
		return errors.New("boom")
	}
	s.invitedIDs[eventID] = friendIDs
	return nil
}

func (s *stubAPI) EventInvites(context.Context) ([]model.EventInvite, error) {
	return s.invites, nil
}

func (s *stubAPI) RespondToEvent(_ context.Context, eventID int, response string) error {
	if s.failRespond {
		return errors.New("boom")
	}
	s.responded[eventID] = response
	return nil
}

func (s *stubAPI) ParticipatedEvents(context.Context, int, int) ([]model.Event, error) {
	s.monthFetches++
	return s.monthEvents, nil
}

func (s *stubAPI) Friends(context.Context) ([]model.User, error) {
	return s.friends, nil
}

func newTestWorkflow(t *testing.T, stub *stubAPI) (*Workflow, *directory.Directory) {
	t.Helper()
	dir := directory.New(stub)
	reg := friends.NewRegistry(stub)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("registry load: %v", err)
	}
	return New(stub, dir, reg), dir
}

func TestOpenAlwaysRefetches(t *testing.T) {
	stub := newStubAPI()
	stub.detail[7] = &model.EventDetail{ID: 7, EventName: "hanami"}
	w, _ := newTestWorkflow(t, stub)

	d, err := w.Open(context.Background(), 7)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.EventName != "hanami" {
		t.Fatalf("detail = %+v", d)
	}
	if w.Mode() != ModeViewing {
		t.Fatalf("mode = %v, want viewing", w.Mode())
	}
}

func TestOpenFailureSurfacesUserMessage(t *testing.T) {
	w, _ := newTestWorkflow(t, newStubAPI())
	if _, err := w.Open(context.Background(), 99); !errors.Is(err, ErrDetailFetch) {
		t.Fatalf("err = %v, want ErrDetailFetch", err)
	}
}

func TestEditRestrictedToCreator(t *testing.T) {
	stub := newStubAPI()
	stub.detail[7] = &model.EventDetail{ID: 7, CreatedBy: 1}
	w, _ := newTestWorkflow(t, stub)
	if _, err := w.Open(context.Background(), 7); err != nil {
		t.Fatalf("Open: %v", err)
	}

	creator := &model.User{ID: 1}
	stranger := &model.User{ID: 2}

	if !w.CanEdit(creator) {
		t.Fatal("creator must be able to edit")
	}
	if w.CanEdit(stranger) {
		t.Fatal("non-creator must not be able to edit")
	}
	if err := w.StartEdit(stranger); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("StartEdit stranger = %v, want ErrNotCreator", err)
	}
	if err := w.StartEdit(creator); err != nil {
		t.Fatalf("StartEdit creator: %v", err)
	}
	if w.Mode() != ModeEditing {
		t.Fatalf("mode = %v, want editing", w.Mode())
	}
}

func TestUpdateReconcilesOpenDetail(t *testing.T) {
	stub := newStubAPI()
	stub.detail[7] = &model.EventDetail{ID: 7, EventName: "old", MeetingPlace: "park", CreatedBy: 1}
	w, _ := newTestWorkflow(t, stub)
	if _, err := w.Open(context.Background(), 7); err != nil {
		t.Fatalf("Open: %v", err)
	}

	name := "new name"
	if err := w.Update(context.Background(), api.UpdateEventRequest{EventName: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	d := w.Detail()
	if d.EventName != "new name" {
		t.Fatalf("name = %q, want updated", d.EventName)
	}
	if d.MeetingPlace != "park" {
		t.Fatalf("place = %q, untouched field changed", d.MeetingPlace)
	}
	if w.Mode() != ModeViewing {
		t.Fatalf("mode = %v, want back to viewing", w.Mode())
	}
}

func TestInviteCandidatesExcludeParticipantsAndInvited(t *testing.T) {
	stub := newStubAPI()
	stub.friends = []model.User{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	stub.detail[7] = &model.EventDetail{
		ID:             7,
		Participants:   []model.User{{ID: 1}},
		InvitedFriends: []model.User{{ID: 2}},
	}
	w, _ := newTestWorkflow(t, stub)
	if _, err := w.Open(context.Background(), 7); err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := w.InviteCandidates()
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 4 {
		t.Fatalf("candidates = %v, want ids 3 and 4", got)
	}
}

func TestInviteAppendsAfterAck(t *testing.T) {
	stub := newStubAPI()
	stub.friends = []model.User{{ID: 3, Username: "aoi"}}
	stub.detail[7] = &model.EventDetail{ID: 7}
	w, _ := newTestWorkflow(t, stub)
	if _, err := w.Open(context.Background(), 7); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.Invite(context.Background(), []model.User{{ID: 3, Username: "aoi"}}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if got := stub.invitedIDs[7]; len(got) != 1 || got[0] != 3 {
		t.Fatalf("server saw invitees %v", got)
	}
	d := w.Detail()
	if len(d.InvitedFriends) != 1 || d.InvitedFriends[0].Username != "aoi" {
		t.Fatalf("invited = %v, want aoi appended", d.InvitedFriends)
	}
}

func TestInviteFailureLeavesDetailUntouched(t *testing.T) {
	stub := newStubAPI()
	stub.failInvite = true
	stub.detail[7] = &model.EventDetail{ID: 7}
	w, _ := newTestWorkflow(t, stub)
	if _, err := w.Open(context.Background(), 7); err != nil {
		t.Fatalf("Open: %v", err)
	}

	err := w.Invite(context.Background(), []model.User{{ID: 3}})
	if !errors.Is(err, ErrInviteFailed) {
		t.Fatalf("err = %v, want ErrInviteFailed", err)
	}
	if len(w.Detail().InvitedFriends) != 0 {
		t.Fatal("failed invite must not append locally")
	}
}

func TestDeleteRemovesFromMonthWithoutRefetch(t *testing.T) {
	stub := newStubAPI()
	stub.detail[7] = &model.EventDetail{ID: 7}
	stub.monthEvents = []model.Event{{ID: 7}, {ID: 8}}
	w, dir := newTestWorkflow(t, stub)

	ctx := context.Background()
	if err := dir.SetMonth(ctx, 4, 2025); err != nil {
		t.Fatalf("SetMonth: %v", err)
	}
	if _, err := w.Open(ctx, 7); err != nil {
		t.Fatalf("Open: %v", err)
	}
	fetchesBefore := stub.monthFetches

	if err := w.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(stub.deleted) != 1 || stub.deleted[0] != 7 {
		t.Fatalf("server deletions = %v", stub.deleted)
	}
	events := dir.Events()
	if len(events) != 1 || events[0].ID != 8 {
		t.Fatalf("month after delete = %v", events)
	}
	if stub.monthFetches != fetchesBefore {
		t.Fatal("delete must reconcile locally, not refetch")
	}
	if w.Detail() != nil {
		t.Fatal("detail must be closed after delete")
	}
}

func TestCreateResetsFormAndRefreshesMonth(t *testing.T) {
	stub := newStubAPI()
	w, dir := newTestWorkflow(t, stub)
	ctx := context.Background()
	if err := dir.SetMonth(ctx, 4, 2025); err != nil {
		t.Fatalf("SetMonth: %v", err)
	}
	fetchesBefore := stub.monthFetches

	form := CreateForm{
		EventName: "bbq",
		EventDate: "2025-04-20",
		Invitees:  []model.User{{ID: 3}},
	}
	if err := w.Create(ctx, &form); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(stub.created) != 1 || stub.created[0].EventName != "bbq" {
		t.Fatalf("created = %v", stub.created)
	}
	if got := stub.created[0].Invitees; len(got) != 1 || got[0] != 3 {
		t.Fatalf("invitees = %v", got)
	}
	if form.EventName != "" || len(form.Invitees) != 0 {
		t.Fatalf("form not reset: %+v", form)
	}
	if stub.monthFetches != fetchesBefore+1 {
		t.Fatalf("month fetches = %d, want one refresh after create", stub.monthFetches)
	}
}

func TestCreateRejectsEmptyRequiredFields(t *testing.T) {
	stub := newStubAPI()
	w, _ := newTestWorkflow(t, stub)
	form := CreateForm{EventName: "  ", EventDate: "2025-04-20"}
	if err := w.Create(context.Background(), &form); !errors.Is(err, ErrEmptyForm) {
		t.Fatalf("err = %v, want ErrEmptyForm", err)
	}
	if len(stub.created) != 0 {
		t.Fatal("invalid form must not reach the server")
	}
}

func TestCreateFailureKeepsForm(t *testing.T) {
	stub := newStubAPI()
	stub.failCreate = true
	w, _ := newTestWorkflow(t, stub)
	form := CreateForm{EventName: "bbq", EventDate: "2025-04-20"}
	if err := w.Create(context.Background(), &form); !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("err = %v, want ErrCreateFailed", err)
	}
	if form.EventName != "bbq" {
		t.Fatal("form must survive a failed create")
	}
}

func TestRespondRemovesInviteAndRefreshesOnAccept(t *testing.T) {
	stub := newStubAPI()
	stub.invites = []model.EventInvite{{ID: 7, EventName: "hanami"}, {ID: 8}}
	w, dir := newTestWorkflow(t, stub)
	ctx := context.Background()
	if err := dir.SetMonth(ctx, 4, 2025); err != nil {
		t.Fatalf("SetMonth: %v", err)
	}
	if _, err := w.LoadInvites(ctx); err != nil {
		t.Fatalf("LoadInvites: %v", err)
	}
	fetchesBefore := stub.monthFetches

	if err := w.Respond(ctx, 7, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if stub.responded[7] != model.ResponseAccepted {
		t.Fatalf("server saw %q", stub.responded[7])
	}
	if invites := w.Invites(); len(invites) != 1 || invites[0].ID != 8 {
		t.Fatalf("invites = %v, want 7 removed", invites)
	}
	if stub.monthFetches != fetchesBefore+1 {
		t.Fatal("accept must refresh the month view")
	}

	if err := w.Respond(ctx, 8, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if stub.responded[8] != model.ResponseDeclined {
		t.Fatalf("server saw %q", stub.responded[8])
	}
	if len(w.Invites()) != 0 {
		t.Fatal("declined invite must be removed")
	}
	if stub.monthFetches != fetchesBefore+1 {
		t.Fatal("decline must not refetch the month")
	}
}
