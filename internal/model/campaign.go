package model

import (
	"time"
)

// Campaign represents a user-created campaign in the database.
// Campaigns are immutable once stored.
type Campaign struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Description string    `db:"description" json:"description"`
	ImageData   []byte    `db:"image_data" json:"image_data"` // base64 in JSON
	ImageType   string    `db:"image_type" json:"image_type"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// User is only read by id and username; credentials are never selected.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}
