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

type FriendRequestRepository struct {
	pool *pgxpool.Pool
}

func NewFriendRequestRepository(pool *pgxpool.Pool) *FriendRequestRepository {
	return &FriendRequestRepository{pool: pool}
}

// Create records a pending request. A repeated request to the same receiver
// returns ErrExists.
func (r *FriendRequestRepository) Create(ctx context.Context, senderID, receiverID int) error {
	defer logger.DeferLogDuration("friendReq.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2)`,
		senderID, receiverID,
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("friendReqRepo.Create: %w", err)
	}
	return nil
}

// PendingFor lists incoming requests not yet responded to.
func (r *FriendRequestRepository) PendingFor(ctx context.Context, receiverID int) ([]model.FriendRequest, error) {
	defer logger.DeferLogDuration("friendReq.PendingFor", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT fr.id, fr.sender_id, u.username
		 FROM friend_requests fr
		 JOIN users u ON u.id = fr.sender_id
		 WHERE fr.receiver_id = $1 AND fr.status = 'pending'
		 ORDER BY fr.created_at`, receiverID,
	)
	if err != nil {
		return nil, fmt.Errorf("friendReqRepo.PendingFor: %w", err)
	}
	defer rows.Close()

	reqs := make([]model.FriendRequest, 0, 8)
	for rows.Next() {
		var fr model.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.SenderID, &fr.SenderUsername); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		reqs = append(reqs, fr)
	}
	return reqs, rows.Err()
}

// Respond resolves a pending request addressed to receiverID. On accept the
// friendship is inserted in both directions and the sender is returned so the
// caller can hand the new friend back to the client. Responding to a request
// that is missing, already resolved, or addressed to someone else returns
// ErrNotFound.
func (r *FriendRequestRepository) Respond(ctx context.Context, requestID, receiverID int, accept bool) (*model.User, error) {
	defer logger.DeferLogDuration("friendReq.Respond", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("friendReqRepo.Respond begin: %w", err)
	}
	defer tx.Rollback(ctx)

	status := "rejected"
	if accept {
		status = "accepted"
	}
	var senderID int
	err = tx.QueryRow(ctx,
		`UPDATE friend_requests SET status = $1
		 WHERE id = $2 AND receiver_id = $3 AND status = 'pending'
		 RETURNING sender_id`,
		status, requestID, receiverID,
	).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("friendReqRepo.Respond update: %w", err)
	}

	sender := &model.User{}
	err = tx.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE id = $1`, senderID,
	).Scan(&sender.ID, &sender.Username, &sender.Email)
	if err != nil {
		return nil, fmt.Errorf("friendReqRepo.Respond sender: %w", err)
	}

	if accept {
		_, err = tx.Exec(ctx,
			`INSERT INTO friendships (user_id, friend_id)
			 VALUES ($1, $2), ($2, $1)
			 ON CONFLICT DO NOTHING`,
			senderID, receiverID,
		)
		if err != nil {
			return nil, fmt.Errorf("friendReqRepo.Respond friendship: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("friendReqRepo.Respond commit: %w", err)
	}
	return sender, nil
}
