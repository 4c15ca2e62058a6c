package models

import "time"

type SupportUser struct {
	SupportID    string    `db:"support_id" json:"supportId"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the acting support agent resolved from a bearer token.
type Identity struct {
	SupportID string `json:"supportId"`
	Name      string `json:"name,omitempty"`
}
