package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create persists a chat message. The caller supplies the uuid and the UTC
// timestamp so the broadcast frame and the stored row agree exactly.
func (r *MessageRepository) Create(ctx context.Context, id string, eventID, userID int, text string, createdAt time.Time) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, event_id, user_id, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, eventID, userID, text, createdAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

// ForEvent returns the event's retained messages in timestamp order.
func (r *MessageRepository) ForEvent(ctx context.Context, eventID int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ForEvent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, u.username, m.message, m.created_at
		 FROM messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.event_id = $1
		 ORDER BY m.created_at`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ForEvent: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		var ts time.Time
		if err := rows.Scan(&m.ID, &m.User, &m.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = ts.UTC().Format(time.RFC3339)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
