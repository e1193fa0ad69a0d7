package models

import (
	"time"

	"github.com/google/uuid"
)

// User describes an account identity. Issuance lives outside this
// module; the Transport Adapter binds only the bearer token's subject
// string to a channel and does not load a User.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
