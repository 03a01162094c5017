package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool *pgxpool.Pool
	msgs *MessageRepository
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool, msgs: NewMessageRepository(pool)}
}

// CreateEventParams are the fields of POST /event/create. Invitees are user
// ids to seed event_invites with; the creator becomes the first participant.
type CreateEventParams struct {
	EventName    string
	EventDate    time.Time
	MeetingTime  string
	MeetingPlace string
	Description  string
	CreatedBy    int
	Invitees     []int
}

func (r *EventRepository) Create(ctx context.Context, p CreateEventParams) (int, error) {
	defer logger.DeferLogDuration("event.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int
	err = tx.QueryRow(ctx,
		`INSERT INTO events (event_name, event_date, meeting_time, meeting_place, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.EventName, p.EventDate.UTC(), p.MeetingTime, p.MeetingPlace, p.Description, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.Create insert: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)`,
		id, p.CreatedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.Create participant: %w", err)
	}

	for _, inviteeID := range p.Invitees {
		if inviteeID == p.CreatedBy {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO event_invites (event_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, inviteeID,
		)
		if err != nil {
			return 0, fmt.Errorf("eventRepo.Create invite: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("eventRepo.Create commit: %w", err)
	}
	return id, nil
}

// MonthEvents lists events in [1st of month, 1st of next month) that the user
// participates in or created.
func (r *EventRepository) MonthEvents(ctx context.Context, userID, year, month int) ([]model.Event, error) {
	defer logger.DeferLogDuration("event.MonthEvents", time.Now())()
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT e.id, e.event_name, e.event_date
		 FROM events e
		 LEFT JOIN event_participants ep ON ep.event_id = e.id
		 WHERE (ep.user_id = $1 OR e.created_by = $1)
		   AND e.event_date >= $2 AND e.event_date < $3
		 ORDER BY e.event_date`, userID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.MonthEvents: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0, 16)
	for rows.Next() {
		var e model.Event
		var date time.Time
		if err := rows.Scan(&e.ID, &e.EventName, &date); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventDate = date.UTC().Format(time.RFC3339)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Detail loads the full event: meeting metadata, participants, invited
// friends and the retained message log in timestamp order.
func (r *EventRepository) Detail(ctx context.Context, eventID int) (*model.EventDetail, error) {
	defer logger.DeferLogDuration("event.Detail", time.Now())()
	d := &model.EventDetail{}
	var date time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, event_name, event_date, meeting_time, meeting_place, description, created_by
		 FROM events WHERE id = $1`, eventID,
	).Scan(&d.ID, &d.EventName, &date, &d.MeetingTime, &d.MeetingPlace, &d.Description, &d.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eventRepo.Detail: %w", err)
	}
	d.EventDate = date.UTC().Format(time.RFC3339)

	d.Participants, err = r.eventUsers(ctx, "event_participants", eventID)
	if err != nil {
		return nil, err
	}
	d.InvitedFriends, err = r.eventUsers(ctx, "event_invites", eventID)
	if err != nil {
		return nil, err
	}

	d.Messages, err = r.msgs.ForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *EventRepository) eventUsers(ctx context.Context, table string, eventID int) ([]model.User, error) {
	// table is one of two compile-time constants, never user input.
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.username, u.email
		 FROM `+table+` t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.event_id = $1
		 ORDER BY u.username`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo users from %s: %w", table, err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// CreatorID returns the id of the user who created the event.
func (r *EventRepository) CreatorID(ctx context.Context, eventID int) (int, error) {
	var createdBy int
	err := r.pool.QueryRow(ctx,
		`SELECT created_by FROM events WHERE id = $1`, eventID,
	).Scan(&createdBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("eventRepo.CreatorID: %w", err)
	}
	return createdBy, nil
}

// UpdateEventParams carries the partial update of PUT /event/{id}/update.
// Nil fields keep their current value.
type UpdateEventParams struct {
	EventName    *string
	MeetingTime  *string
	MeetingPlace *string
	Description  *string
}

func (r *EventRepository) Update(ctx context.Context, eventID int, p UpdateEventParams) error {
	defer logger.DeferLogDuration("event.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET
		     event_name    = COALESCE($2, event_name),
		     meeting_time  = COALESCE($3, meeting_time),
		     meeting_place = COALESCE($4, meeting_place),
		     description   = COALESCE($5, description)
		 WHERE id = $1`,
		eventID, p.EventName, p.MeetingTime, p.MeetingPlace, p.Description,
	)
	if err != nil {
		return fmt.Errorf("eventRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, eventID int) error {
	defer logger.DeferLogDuration("event.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("eventRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Invite appends invitees, silently skipping users who are already
// participants or already invited (keeps the two sets disjoint).
func (r *EventRepository) Invite(ctx context.Context, eventID int, invitees []int) error {
	defer logger.DeferLogDuration("event.Invite", time.Now())()
	for _, userID := range invitees {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO event_invites (event_id, user_id)
			 SELECT $1, $2
			 WHERE NOT EXISTS (
			     SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2
			 )
			 ON CONFLICT DO NOTHING`,
			eventID, userID,
		)
		if err != nil {
			return fmt.Errorf("eventRepo.Invite: %w", err)
		}
	}
	return nil
}

// Respond consumes the user's pending invite. Accepting moves the user into
// event_participants; declining just removes the invite. ErrNotFound when no
// pending invite exists.
func (r *EventRepository) Respond(ctx context.Context, eventID, userID int, accepted bool) error {
	defer logger.DeferLogDuration("event.Respond", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("eventRepo.Respond begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM event_invites WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("eventRepo.Respond delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if accepted {
		_, err = tx.Exec(ctx,
			`INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			eventID, userID,
		)
		if err != nil {
			return fmt.Errorf("eventRepo.Respond participant: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// PendingInvites lists the user's open event invitations with the inviter's
// username (the event creator).
func (r *EventRepository) PendingInvites(ctx context.Context, userID int) ([]model.EventInvite, error) {
	defer logger.DeferLogDuration("event.PendingInvites", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.event_name, e.event_date, e.meeting_time, e.meeting_place, e.description, u.username
		 FROM event_invites ei
		 JOIN events e ON e.id = ei.event_id
		 JOIN users u ON u.id = e.created_by
		 WHERE ei.user_id = $1
		 ORDER BY e.event_date`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.PendingInvites: %w", err)
	}
	defer rows.Close()

	invites := make([]model.EventInvite, 0, 8)
	for rows.Next() {
		var inv model.EventInvite
		var date time.Time
		if err := rows.Scan(&inv.ID, &inv.EventName, &date, &inv.MeetingTime, &inv.MeetingPlace, &inv.Description, &inv.InvitedBy); err != nil {
			return nil, fmt.Errorf("scan event invite: %w", err)
		}
		inv.EventDate = date.UTC().Format(time.RFC3339)
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// IsParticipant reports whether the user participates in the event (the
// creator always does).
func (r *EventRepository) IsParticipant(ctx context.Context, eventID, userID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2
		 ) OR EXISTS (
		     SELECT 1 FROM events WHERE id = $1 AND created_by = $2
		 )`, eventID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("eventRepo.IsParticipant: %w", err)
	}
	return ok, nil
}

// IsInvited reports whether the user has a pending invite to the event.
func (r *EventRepository) IsInvited(ctx context.Context, eventID, userID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_invites WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("eventRepo.IsInvited: %w", err)
	}
	return ok, nil
}
