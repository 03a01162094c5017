package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// FriendRequest is a pending incoming request as shown to the receiver.
// It disappears from the pending list once responded to.
type FriendRequest struct {
	ID             int    `json:"id"`
	SenderID       int    `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
}
